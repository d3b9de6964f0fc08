package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"esadad-service/internal/gateway"
)

type Merchant struct {
	Code     string
	Password string
}

// Endpoints holds one WSDL locator per gateway operation.
type Endpoints struct {
	Authentication    string
	PaymentInitiation string
	PaymentRequest    string
	PaymentConfirm    string
}

type Transport struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	Namespace          string
}

type Database struct {
	User              string
	Password          string
	Host              string
	Port              string
	Name              string
	TransactionsTable string
	LogsTable         string
}

type Checkout struct {
	RoutePrefix string
	SessionTTL  time.Duration
}

type Kafka struct {
	Brokers      []string
	PaymentTopic string
}

type Logs struct {
	Level   string
	Format  string
	Channel string
}

type Config struct {
	Merchant        Merchant
	Endpoints       Endpoints
	Transport       Transport
	PublicKeyPath   string
	CurrencyCode    string
	Location        *time.Location
	Production      bool
	Database        Database
	Checkout        Checkout
	Kafka           Kafka
	Logs            Logs
	RedisAddr       string
	Port            string
	GRPCPort        string
	StaleAfter      time.Duration
	ConfirmAttempts int
}

const (
	defaultAuthWSDL    = "https://172.19.0.17:8002/EBPP_ONLINE-MERC_ONLINE_AUTHENTICATION-context-root/MERC_ONLINE_AUTHENTICATIONPort?wsdl"
	defaultInitWSDL    = "https://172.19.0.17:8002/EBPP_ONLINE-MERC_ONLINE_PAYMENT_INITIATION-context-root/MERC_ONLINE_PAYMENT_INITIATIONPort?WSDL"
	defaultRequestWSDL = "https://172.19.0.17:8002/EBPP_ONLINE-MERC_ONLINE_PAYMENT_REQUEST-context-root/MERC_ONLINE_PAYMENT_REQUESTPort?WSDL"
	defaultConfirmWSDL = "https://172.19.0.17:8002/EBPP_ONLINE-MERC_ONLINE_PAYMENT_CONFIRM-context-root/MERC_ONLINE_PAYMENT_CONFIRMPort?WSDL"
)

// LoadEnvFile loads .env from the working directory, falling back to the parent.
func LoadEnvFile() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found in current directory, trying parent")
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("No .env file found, using system environment variables")
		}
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ESADAD_AUTH_WSDL", defaultAuthWSDL)
	v.SetDefault("ESADAD_INIT_WSDL", defaultInitWSDL)
	v.SetDefault("ESADAD_REQUEST_WSDL", defaultRequestWSDL)
	v.SetDefault("ESADAD_CONFIRM_WSDL", defaultConfirmWSDL)
	v.SetDefault("ESADAD_SOAP_TIMEOUT_SECONDS", 30)
	v.SetDefault("ESADAD_TLS_INSECURE_SKIP_VERIFY", false)
	v.SetDefault("ESADAD_CURRENCY_CODE", "886")
	v.SetDefault("ESADAD_TIMEZONE", "Local")
	v.SetDefault("ESADAD_PRODUCTION", false)
	v.SetDefault("ESADAD_TRANSACTIONS_TABLE", "esadad_transactions")
	v.SetDefault("ESADAD_LOGS_TABLE", "esadad_logs")
	v.SetDefault("ESADAD_LOG_CHANNEL", "esadad")
	v.SetDefault("ESADAD_ROUTE_PREFIX", "esadad")
	v.SetDefault("CHECKOUT_SESSION_TTL_MINUTES", 15)
	v.SetDefault("STALE_TRANSACTION_MINUTES", 30)
	v.SetDefault("CONFIRM_MAX_ATTEMPTS", 5)
	v.SetDefault("KAFKA_PAYMENT_TOPIC", "esadad-payment-events")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("PORT", "8080")
	v.SetDefault("GRPC_PORT", "50051")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	return v
}

// Load builds the configuration from the process environment.
func Load() (*Config, error) {
	return load(newViper())
}

func load(v *viper.Viper) (*Config, error) {
	zone := v.GetString("ESADAD_TIMEZONE")
	location, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("invalid ESADAD_TIMEZONE %q: %w", zone, err)
	}

	var brokers []string
	for _, b := range strings.Split(v.GetString("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	cfg := &Config{
		Merchant: Merchant{
			Code:     v.GetString("ESADAD_MERCHANT_CODE"),
			Password: v.GetString("ESADAD_MERCHANT_PASSWORD"),
		},
		Endpoints: Endpoints{
			Authentication:    v.GetString("ESADAD_AUTH_WSDL"),
			PaymentInitiation: v.GetString("ESADAD_INIT_WSDL"),
			PaymentRequest:    v.GetString("ESADAD_REQUEST_WSDL"),
			PaymentConfirm:    v.GetString("ESADAD_CONFIRM_WSDL"),
		},
		Transport: Transport{
			Timeout:            time.Duration(v.GetInt("ESADAD_SOAP_TIMEOUT_SECONDS")) * time.Second,
			InsecureSkipVerify: v.GetBool("ESADAD_TLS_INSECURE_SKIP_VERIFY"),
			Namespace:          v.GetString("ESADAD_SOAP_NAMESPACE"),
		},
		PublicKeyPath: v.GetString("ESADAD_PUBLIC_KEY_PATH"),
		CurrencyCode:  v.GetString("ESADAD_CURRENCY_CODE"),
		Location:      location,
		Production:    v.GetBool("ESADAD_PRODUCTION"),
		Database: Database{
			User:              v.GetString("DB_USER"),
			Password:          v.GetString("DB_PASSWORD"),
			Host:              v.GetString("DB_HOST"),
			Port:              v.GetString("DB_PORT"),
			Name:              v.GetString("DB_NAME"),
			TransactionsTable: v.GetString("ESADAD_TRANSACTIONS_TABLE"),
			LogsTable:         v.GetString("ESADAD_LOGS_TABLE"),
		},
		Checkout: Checkout{
			RoutePrefix: strings.Trim(v.GetString("ESADAD_ROUTE_PREFIX"), "/"),
			SessionTTL:  time.Duration(v.GetInt("CHECKOUT_SESSION_TTL_MINUTES")) * time.Minute,
		},
		Kafka: Kafka{
			Brokers:      brokers,
			PaymentTopic: v.GetString("KAFKA_PAYMENT_TOPIC"),
		},
		Logs: Logs{
			Level:   v.GetString("LOG_LEVEL"),
			Format:  v.GetString("LOG_FORMAT"),
			Channel: v.GetString("ESADAD_LOG_CHANNEL"),
		},
		RedisAddr:       v.GetString("REDIS_URL"),
		Port:            v.GetString("PORT"),
		GRPCPort:        v.GetString("GRPC_PORT"),
		StaleAfter:      time.Duration(v.GetInt("STALE_TRANSACTION_MINUTES")) * time.Minute,
		ConfirmAttempts: v.GetInt("CONFIRM_MAX_ATTEMPTS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad loads the configuration or exits.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) Validate() error {
	if c.Merchant.Code == "" {
		return fmt.Errorf("ESADAD_MERCHANT_CODE is required")
	}
	if c.Merchant.Password == "" {
		return fmt.Errorf("ESADAD_MERCHANT_PASSWORD is required")
	}
	if err := c.Endpoints.Validate(); err != nil {
		return err
	}
	if c.Production && c.PublicKeyPath == "" {
		return fmt.Errorf("ESADAD_PUBLIC_KEY_PATH is required in production")
	}
	if c.CurrencyCode == "" {
		return fmt.Errorf("ESADAD_CURRENCY_CODE must not be empty")
	}
	if c.Transport.Timeout <= 0 {
		return fmt.Errorf("ESADAD_SOAP_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

// Validate rejects a missing or unparsable locator for any of the four operations.
func (e Endpoints) Validate() error {
	return gateway.Endpoints(e).Validate()
}

// DSN returns the MySQL data source name.
func (d Database) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.Name)
}
