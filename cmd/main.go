package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/enterprise/cvm-trust-verifier/internal/audit"
	"github.com/enterprise/cvm-trust-verifier/internal/claims"
	"github.com/enterprise/cvm-trust-verifier/internal/config"
	"github.com/enterprise/cvm-trust-verifier/internal/orchestrator"
	"github.com/enterprise/cvm-trust-verifier/internal/refvalue"
	"github.com/enterprise/cvm-trust-verifier/internal/store"
	"github.com/enterprise/cvm-trust-verifier/pkg/logger"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var (
	pass = color.New(color.FgGreen).SprintFunc()
	fail = color.New(color.FgRed).SprintFunc()
)

func main() {
	var configPath string
	var localMode bool
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "cvm-trust",
		Short: "Confidential VM trust verifier",
		Long: `Verifies TDX attestation evidence of a confidential VM against
reference measurements extracted from a trusted disk image, and audits disk
images offline for insecure configuration.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Run the full verification sequence against the attestation gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(configPath, localMode, verbose)
		},
	}
	verifyCmd.Flags().BoolVar(&localMode, "local", false, "Evaluate claims in-process instead of calling the gateway")
	verifyCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the full report: token header, claims payload and cryptpilot event logs")

	extractCmd := &cobra.Command{
		Use:   "extract <image-root>",
		Short: "Extract reference measurements from a trusted image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(configPath, args[0])
		},
	}

	registerCmd := &cobra.Command{
		Use:   "register <document.json>",
		Short: "Register a reference-value document with the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(configPath, args[0])
		},
	}

	var auditJSON bool
	auditCmd := &cobra.Command{
		Use:   "audit <image-root> [hash_type]",
		Short: "Audit a mounted image offline",
		Long: `Runs the service-enablement and binary-hash checks against a mounted
image. The exit code is the number of failed binary checks; an enabled SSH
server alone exits 1.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			alg := "sha384"
			if len(args) == 2 {
				alg = args[1]
			}
			return runAudit(configPath, args[0], alg, auditJSON)
		},
	}
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Emit results as JSON")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Version: %s\n", version)
			fmt.Printf("Build Time: %s\n", buildTime)
			fmt.Printf("Git Commit: %s\n", gitCommit)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println(pass("✓"), "configuration valid")
			return nil
		},
	}

	rootCmd.AddCommand(verifyCmd, extractCmd, registerCmd, auditCmd, versionCmd, validateCmd)

	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func setup(configPath string) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(cfg.Logging), nil
}

// setupLogger builds only the logger, for commands that depend on no other
// configuration. Skips Validate so unrelated settings cannot block them.
func setupLogger(configPath string) (*logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return logger.New(cfg.Logging), nil
}

func runVerify(configPath string, localMode, verbose bool) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}
	verbose = verbose || cfg.Output.Verbose

	fs := afero.NewOsFs()
	extractor, err := refvalue.NewExtractor(fs, cfg.Reference.DigestAlg, log)
	if err != nil {
		return err
	}

	metrics := claims.NewMetrics(nil)
	installer := orchestrator.NewDirInstaller(fs, cfg.Policy.Dir, log)

	var registrar orchestrator.Registrar
	var evaluator orchestrator.EvidenceEvaluator
	var controller orchestrator.ServiceController
	if localMode {
		mem := store.NewMemoryStore()
		registrar = mem
		evaluator = orchestrator.NewLocalEvaluator(mem, metrics, log)
		controller = noopController{}
	} else {
		registrar = store.NewClient(cfg.Gateway.BaseURL(), cfg.Gateway.Timeout, log)
		evaluator = orchestrator.NewGatewayEvaluator(cfg.Gateway, cfg.Instance, log)
		controller = orchestrator.NewSystemdController(nil, cfg.Service, log)
	}

	orch := orchestrator.New(cfg, fs, controller, extractor, registrar, installer, evaluator, log)
	result, err := orch.Run(context.Background())
	if err != nil {
		fmt.Println(fail("✗"), "verification failed:", err)
		os.Exit(1)
	}

	if result.ExitCode == 0 {
		fmt.Println(pass("✓"), "all trust claims verified")
	} else {
		fmt.Println(fail("✗"), "trust claims not verified")
	}
	orchestrator.WriteReport(os.Stdout, result, verbose)
	if result.TokenPath != "" {
		fmt.Printf("  token: %s\n", result.TokenPath)
	}
	fmt.Printf("  payload: %s\n", result.PayloadPath)

	os.Exit(result.ExitCode)
	return nil
}

func runExtract(configPath, imageRoot string) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}

	extractor, err := refvalue.NewExtractor(afero.NewOsFs(), cfg.Reference.DigestAlg, log)
	if err != nil {
		return err
	}

	doc, err := extractor.Extract(imageRoot)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func runRegister(configPath, docPath string) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(docPath)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	var doc refvalue.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}

	client := store.NewClient(cfg.Gateway.BaseURL(), cfg.Gateway.Timeout, log)
	if err := client.Register(context.Background(), &doc); err != nil {
		return err
	}
	fmt.Println(pass("✓"), "reference values registered")
	return nil
}

func runAudit(configPath, imageRoot, alg string, asJSON bool) error {
	log, err := setupLogger(configPath)
	if err != nil {
		return err
	}

	auditor := audit.NewAuditor(afero.NewOsFs(), log)

	serviceResult := auditor.ServiceCheck(imageRoot)
	binaryResult, err := auditor.BinaryCheck(imageRoot, alg)
	if err != nil {
		return err
	}

	if asJSON {
		out, err := json.MarshalIndent(map[string]interface{}{
			"service_check": serviceResult,
			"binary_check":  binaryResult,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		if serviceResult.Secure {
			fmt.Println(pass("✓"), "service check: secure:", serviceResult.Reason)
		} else {
			fmt.Println(fail("✗"), "service check: insecure:", serviceResult.Reason)
		}
		for _, res := range binaryResult.Results {
			if res.Found && res.Error == "" {
				fmt.Printf("%s %s %s:%s\n", pass("✓"), res.Path, res.Alg, res.Digest)
			} else {
				fmt.Println(fail("✗"), res.Path, "missing or unreadable")
			}
		}
	}

	exitCode := binaryResult.FailureCount()
	if exitCode == 0 && !serviceResult.Secure {
		exitCode = 1
	}
	os.Exit(exitCode)
	return nil
}

// noopController satisfies ServiceController in local mode, where no trust
// service process is involved.
type noopController struct{}

func (noopController) EnsureRunning(context.Context) error { return nil }
