package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials is returned when the PocketSmith credentials are absent.
var ErrMissingCredentials = errors.New("missing required credentials")

// Defaults for the warehouse and source locations.
const (
	DefaultBaseURL       = "https://api.pocketsmith.com/v2"
	DefaultDataset       = "financial_data"
	DefaultAccountsTable = "accounts_raw"
	DefaultSpendingTable = "mandatory_spending"
	DefaultRunwayTable   = "runway_info"
	DefaultLogLevel      = "info"
)

// Rounding modes for the grand total.
const (
	RoundingNone           = "none"
	RoundingNearestHundred = "nearest_hundred"
)

var validate = validator.New()

// Config is the full configuration of a refresh run.
type Config struct {
	PocketSmith PocketSmithConfig
	Warehouse   WarehouseConfig
	Archive     ArchiveConfig
	LogLevel    string `validate:"omitempty,oneof=trace debug info warn error"`
	Rules       Rules
}

// PocketSmithConfig holds the source API credentials.
type PocketSmithConfig struct {
	APIKey  string `validate:"required"`
	UserID  string `validate:"required"`
	BaseURL string `validate:"required,url"`
}

// WarehouseConfig locates the BigQuery tables.
type WarehouseConfig struct {
	ProjectID     string
	DatasetID     string `validate:"required"`
	AccountsTable string `validate:"required"`
	SpendingTable string `validate:"required"`
	RunwayTable   string `validate:"required"`
}

// ArchiveConfig enables the raw payload archive when Bucket is set.
type ArchiveConfig struct {
	Bucket string
}

// Rules is the categorization and spending configuration blob. It is loaded
// once per run and passed by value into the processor.
type Rules struct {
	CashTitles              []string `yaml:"CASH_TITLES" json:"CASH_TITLES"`
	InvestmentTitles        []string `yaml:"INVESTMENT_TITLES" json:"INVESTMENT_TITLES"`
	CarIdentifier           string   `yaml:"CAR_IDENTIFIER" json:"CAR_IDENTIFIER"`
	CondoIdentifier         string   `yaml:"CONDO_IDENTIFIER" json:"CONDO_IDENTIFIER"`
	APICalculatedCategories []string `yaml:"API_CALCULATED_CATEGORIES" json:"API_CALCULATED_CATEGORIES"`
	GroceriesEstimate       float64  `yaml:"GROCERIES_ESTIMATE" json:"GROCERIES_ESTIMATE" validate:"gte=0"`
	RestaurantEstimate      float64  `yaml:"RESTAURANT_ESTIMATE" json:"RESTAURANT_ESTIMATE" validate:"gte=0"`
	HealthInsuranceEstimate float64  `yaml:"HEALTH_INSURANCE_ESTIMATE" json:"HEALTH_INSURANCE_ESTIMATE" validate:"gte=0"`
	GrandTotalRounding      string   `yaml:"GRAND_TOTAL_ROUNDING" json:"GRAND_TOTAL_ROUNDING" validate:"omitempty,oneof=none nearest_hundred"`
}

// LoadFromEnv builds a Config from the process environment. rulesPath, when
// non-empty, takes precedence over CONFIG_JSON.
func LoadFromEnv(rulesPath string) (*Config, error) {
	return Load(os.Getenv, rulesPath)
}

// Load builds a Config using getenv for lookups. Missing source credentials
// fail with ErrMissingCredentials before anything else is validated.
func Load(getenv func(string) string, rulesPath string) (*Config, error) {
	cfg, err := load(getenv, rulesPath)
	if err != nil {
		return nil, err
	}
	if cfg.PocketSmith.APIKey == "" || cfg.PocketSmith.UserID == "" {
		return nil, fmt.Errorf("Load: POCKETSMITH_API_KEY and POCKETSMITH_USER_ID: %w", ErrMissingCredentials)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("Load: validating config: %w", err)
	}
	return cfg, nil
}

// LoadLocal builds a Config for operations that never call the source API,
// such as replaying an archive or inspecting tables. Source credentials are
// not required.
func LoadLocal(getenv func(string) string, rulesPath string) (*Config, error) {
	cfg, err := load(getenv, rulesPath)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg.Warehouse); err != nil {
		return nil, fmt.Errorf("LoadLocal: validating warehouse: %w", err)
	}
	if err := validate.Var(cfg.LogLevel, "omitempty,oneof=trace debug info warn error"); err != nil {
		return nil, fmt.Errorf("LoadLocal: validating log level: %w", err)
	}
	return cfg, nil
}

func load(getenv func(string) string, rulesPath string) (*Config, error) {
	cfg := &Config{
		PocketSmith: PocketSmithConfig{
			APIKey:  strings.TrimSpace(getenv("POCKETSMITH_API_KEY")),
			UserID:  strings.TrimSpace(getenv("POCKETSMITH_USER_ID")),
			BaseURL: withDefault(getenv("POCKETSMITH_BASE_URL"), DefaultBaseURL),
		},
		Warehouse: WarehouseConfig{
			ProjectID:     getenv("GCP_PROJECT_ID"),
			DatasetID:     withDefault(getenv("BQ_DATASET"), DefaultDataset),
			AccountsTable: withDefault(getenv("BQ_ACCOUNTS_TABLE"), DefaultAccountsTable),
			SpendingTable: withDefault(getenv("BQ_SPENDING_TABLE"), DefaultSpendingTable),
			RunwayTable:   withDefault(getenv("BQ_RUNWAY_TABLE"), DefaultRunwayTable),
		},
		Archive:  ArchiveConfig{Bucket: getenv("ARCHIVE_BUCKET")},
		LogLevel: withDefault(getenv("LOG_LEVEL"), DefaultLogLevel),
	}

	var (
		rules Rules
		err   error
	)
	if rulesPath != "" {
		rules, err = LoadRulesFile(rulesPath)
	} else {
		rules, err = ParseRules([]byte(getenv("CONFIG_JSON")))
	}
	if err != nil {
		return nil, err
	}
	cfg.Rules = rules
	return cfg, nil
}

// Tables lists the three snapshot table names.
func (w WarehouseConfig) Tables() []string {
	return []string{w.AccountsTable, w.SpendingTable, w.RunwayTable}
}

// LoadRulesFile reads a YAML or JSON rules file.
func LoadRulesFile(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("LoadRulesFile: reading %s: %w", path, err)
	}
	return ParseRules(data)
}

// ParseRules decodes a rules blob. YAML is a superset of JSON so both are
// accepted. An empty blob yields empty lists and zero estimates.
func ParseRules(data []byte) (Rules, error) {
	var rules Rules
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.Unmarshal(data, &rules); err != nil {
			return Rules{}, fmt.Errorf("ParseRules: %w", err)
		}
	}
	if rules.GrandTotalRounding == "" {
		rules.GrandTotalRounding = RoundingNone
	}
	if err := validate.Struct(rules); err != nil {
		return Rules{}, fmt.Errorf("ParseRules: validating rules: %w", err)
	}
	return rules, nil
}

// RequireWarehouse reports an error when the warehouse project is not set.
func (c *Config) RequireWarehouse() error {
	if c.Warehouse.ProjectID == "" {
		return fmt.Errorf("RequireWarehouse: GCP_PROJECT_ID: %w", ErrMissingCredentials)
	}
	return nil
}

func withDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
