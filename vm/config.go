package vm

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/CATProtocol/cat-token-box-sub000/builder"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/zk"
)

type Config struct {
	// Parallelism bounds the spends verified at once. Zero means GOMAXPROCS.
	Parallelism int `json:"parallelism"`
	// NonceSearchLimit bounds the locktimes tried when building a spend.
	NonceSearchLimit int              `json:"nonceSearchLimit"`
	ZK               ZKVerifierConfig `json:"zk"`
}

type ZKVerifierConfig struct {
	Enabled bool `json:"enabled"`
	Strict  bool `json:"strict"`

	Groth16VerifyingKeyPath string `json:"groth16VerifyingKeyPath"`
	PlonkVerifyingKeyPath   string `json:"plonkVerifyingKeyPath"`
	RequiredCircuitID       string `json:"requiredCircuitID"`
}

func NewDefaultConfig() Config {
	return Config{
		Parallelism:      runtime.GOMAXPROCS(0),
		NonceSearchLimit: builder.DefaultNonceSearchLimit,
		ZK:               NewDefaultZKVerifierConfig(),
	}
}

func NewDefaultZKVerifierConfig() ZKVerifierConfig {
	return ZKVerifierConfig{
		Enabled:           false,
		Strict:            false,
		RequiredCircuitID: consts.ProofCircuitTxidV1,
	}
}

// ResolveConfig applies CAT_VM_* and CAT_ZK_* environment overrides and
// fills zero values with defaults.
func ResolveConfig(cfg Config) Config {
	if v, ok := parseEnvInt("CAT_VM_PARALLELISM"); ok {
		cfg.Parallelism = v
	}
	if v, ok := parseEnvInt("CAT_VM_NONCE_SEARCH_LIMIT"); ok {
		cfg.NonceSearchLimit = v
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.GOMAXPROCS(0)
	}
	if cfg.NonceSearchLimit <= 0 {
		cfg.NonceSearchLimit = builder.DefaultNonceSearchLimit
	}
	cfg.ZK = resolveZKConfig(cfg.ZK)
	return cfg
}

func resolveZKConfig(cfg ZKVerifierConfig) ZKVerifierConfig {
	if v, ok := parseEnvBool("CAT_ZK_VERIFIER_ENABLED"); ok {
		cfg.Enabled = v
	}
	if v, ok := parseEnvBool("CAT_ZK_VERIFIER_STRICT"); ok {
		cfg.Strict = v
	}
	if v, ok := getEnv("CAT_ZK_GROTH16_VK_PATH"); ok {
		cfg.Groth16VerifyingKeyPath = v
	}
	if v, ok := getEnv("CAT_ZK_PLONK_VK_PATH"); ok {
		cfg.PlonkVerifyingKeyPath = v
	}
	if v, ok := getEnv("CAT_ZK_REQUIRED_CIRCUIT_ID"); ok {
		cfg.RequiredCircuitID = v
	}
	return cfg
}

// newAttestor returns nil when attestations are disabled.
func newAttestor(cfg ZKVerifierConfig) (*zk.Verifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return zk.NewVerifier(zk.Config{
		Groth16VerifyingKeyPath: cfg.Groth16VerifyingKeyPath,
		PlonkVerifyingKeyPath:   cfg.PlonkVerifyingKeyPath,
		RequiredCircuitID:       cfg.RequiredCircuitID,
	})
}

func parseEnvInt(name string) (int, bool) {
	v, ok := getEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseEnvBool(name string) (bool, bool) {
	v, ok := getEnv(name)
	if !ok {
		return false, false
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true, true
	case "0", "false", "f", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}

func getEnv(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", false
	}
	return v, true
}
