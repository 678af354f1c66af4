package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalid marks a command line or setting the program cannot run with.
var ErrInvalid = errors.New("invalid invocation")

// Sink names.
const (
	SinkMongo    = "mongo"
	SinkPostgres = "postgres"
	SinkSQLite   = "sqlite"
)

type Options struct {
	chains         []string
	list           bool
	output         string
	limit          int
	fileLimit      int
	workers        int
	timeout        time.Duration
	dataDir        string
	scraperCmd     string
	workDir        string
	categoriesFile string
	updateDB       bool
	sink           string
	mongoURI       string
	dataBaseDSN    string
	sqlitePath     string
	migrationsDir  string
	dataSource     string
	pushgatewayURL string
	logLevel       string
	configFile     string
	envFile        string
}

func NewOptions() *Options {
	return new(Options)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("limit", 5000)
	v.SetDefault("file-limit", 10)
	v.SetDefault("workers", 1)
	v.SetDefault("timeout", "10m")
	v.SetDefault("sink", SinkMongo)
	v.SetDefault("mongodb-uri", "mongodb://localhost:27017/budget-manager")
	v.SetDefault("sqlite-path", "chainprices.db")
	v.SetDefault("migrations-dir", "migrations")
	v.SetDefault("data-source", "chainprices")
	v.SetDefault("log-level", "info")
}

// NewFlagSet registers the command line flags. Flags and chain ids may be
// interleaved.
func NewFlagSet(output io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("chainprices", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintln(output, "Usage: chainprices [flags] [chain ...]")
		fmt.Fprintln(output)
		fmt.Fprintln(output, "Fetches price feeds of the given chains, merges them by barcode and")
		fmt.Fprintln(output, "prints the result as JSON. Without chains a default set is fetched.")
		fmt.Fprintln(output)
		fs.PrintDefaults()
	}

	fs.Bool("list", false, "print the known chains as JSON and exit")
	fs.StringP("output", "o", "", "write the result to this file and print its path")
	fs.IntP("limit", "l", 5000, "maximum products per chain, 0 for no limit")
	fs.Int("file-limit", 10, "number of feed files requested per chain")
	fs.Int("workers", 1, "chains fetched at the same time")
	fs.Duration("timeout", 10*time.Minute, "time allowed for one chain")
	fs.String("data-dir", "", "read feeds from this directory instead of running a scraper")
	fs.String("scraper-cmd", "", "scraper command template with {chain} {token} {dir} {types} {limit}")
	fs.String("work-dir", "", "where temporary work directories are created")
	fs.String("categories", "", "YAML file overriding the category keyword table")
	fs.Bool("update-db", false, "also store the merged products in the database")
	fs.String("sink", SinkMongo, "database used by --update-db: mongo, postgres or sqlite")
	fs.String("mongodb-uri", "mongodb://localhost:27017/budget-manager", "MongoDB connection string")
	fs.String("database-uri", "", "PostgreSQL connection string")
	fs.String("sqlite-path", "chainprices.db", "SQLite database file")
	fs.String("migrations-dir", "migrations", "PostgreSQL migrations directory")
	fs.String("data-source", "chainprices", "dataSource tag of stored products")
	fs.String("pushgateway-url", "", "push run metrics to this Prometheus Pushgateway")
	fs.String("log-level", "info", "log level")
	fs.String("config", "", "YAML config file")
	return fs
}

// Parse reads settings from the command line, the environment, an optional
// .env file and an optional YAML config file, in that order of precedence.
func (o *Options) Parse(args []string, output io.Writer) error {
	o.envFile = loadEnvFile()

	fs := NewFlagSet(output)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	o.configFile = v.GetString("config")
	if o.configFile != "" {
		v.SetConfigFile(o.configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	o.chains = fs.Args()
	o.list = v.GetBool("list")
	o.output = v.GetString("output")
	o.limit = v.GetInt("limit")
	o.fileLimit = v.GetInt("file-limit")
	o.workers = v.GetInt("workers")
	o.timeout = v.GetDuration("timeout")
	o.dataDir = v.GetString("data-dir")
	o.scraperCmd = v.GetString("scraper-cmd")
	o.workDir = v.GetString("work-dir")
	o.categoriesFile = v.GetString("categories")
	o.updateDB = v.GetBool("update-db")
	o.sink = strings.ToLower(v.GetString("sink"))
	o.mongoURI = v.GetString("mongodb-uri")
	o.dataBaseDSN = v.GetString("database-uri")
	o.sqlitePath = v.GetString("sqlite-path")
	o.migrationsDir = v.GetString("migrations-dir")
	o.dataSource = v.GetString("data-source")
	o.pushgatewayURL = v.GetString("pushgateway-url")
	o.logLevel = v.GetString("log-level")

	if err := o.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (o *Options) validate() error {
	if o.limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", o.limit)
	}
	if o.fileLimit < 0 {
		return fmt.Errorf("file-limit must not be negative, got %d", o.fileLimit)
	}
	if o.workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", o.workers)
	}
	if o.timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", o.timeout)
	}
	switch o.sink {
	case SinkMongo, SinkPostgres, SinkSQLite:
	default:
		return fmt.Errorf("sink must be mongo, postgres or sqlite, got %q", o.sink)
	}
	if o.dataDir != "" && o.scraperCmd != "" {
		return errors.New("data-dir and scraper-cmd are mutually exclusive")
	}
	return nil
}

func (o *Options) Chains() []string {
	return o.chains
}

func (o *Options) List() bool {
	return o.list
}

func (o *Options) Output() string {
	return o.output
}

func (o *Options) Limit() int {
	return o.limit
}

func (o *Options) FileLimit() int {
	return o.fileLimit
}

func (o *Options) Workers() int {
	return o.workers
}

func (o *Options) Timeout() time.Duration {
	return o.timeout
}

func (o *Options) DataDir() string {
	return o.dataDir
}

func (o *Options) ScraperCmd() string {
	return o.scraperCmd
}

func (o *Options) WorkDir() string {
	return o.workDir
}

func (o *Options) CategoriesFile() string {
	return o.categoriesFile
}

func (o *Options) UpdateDB() bool {
	return o.updateDB
}

func (o *Options) Sink() string {
	return o.sink
}

func (o *Options) MongoURI() string {
	return o.mongoURI
}

func (o *Options) DataBaseDSN() string {
	return o.dataBaseDSN
}

func (o *Options) SQLitePath() string {
	return o.sqlitePath
}

func (o *Options) MigrationsDir() string {
	return o.migrationsDir
}

func (o *Options) DataSource() string {
	return o.dataSource
}

func (o *Options) PushgatewayURL() string {
	return o.pushgatewayURL
}

func (o *Options) LogLevel() string {
	return o.logLevel
}

func (o *Options) ConfigFile() string {
	return o.configFile
}

// EnvFile is the .env file that was loaded, empty when there was none.
func (o *Options) EnvFile() string {
	return o.envFile
}

// loadEnvFile loads environment variables from a .env file in the working
// directory or two levels above it. Variables already set are kept.
func loadEnvFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for _, path := range []string{
		filepath.Join(cwd, ".env"),
		filepath.Join(cwd, "..", "..", ".env"),
	} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}
