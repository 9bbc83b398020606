package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/arkade-os/custodyd/internal/core/application"
	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/arkade-os/custodyd/internal/infrastructure/alertsmanager"
	"github.com/arkade-os/custodyd/internal/infrastructure/authority"
	"github.com/arkade-os/custodyd/internal/infrastructure/db"
	inmemorylivestore "github.com/arkade-os/custodyd/internal/infrastructure/live-store/inmemory"
	redislivestore "github.com/arkade-os/custodyd/internal/infrastructure/live-store/redis"
	"github.com/arkade-os/custodyd/internal/infrastructure/metrics"
	timescheduler "github.com/arkade-os/custodyd/internal/infrastructure/scheduler/gocron"
	tickerscheduler "github.com/arkade-os/custodyd/internal/infrastructure/scheduler/ticker"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const envPrefix = "CUSTODYD_"

var (
	supportedEventDbs = supportedType{
		"badger":   {},
		"postgres": {},
	}
	supportedDbs = supportedType{
		"badger":   {},
		"sqlite":   {},
		"postgres": {},
	}
	supportedSchedulers = supportedType{
		"gocron": {},
		"ticker": {},
	}
	supportedLiveStores = supportedType{
		"inmemory": {},
		"redis":    {},
	}
)

type Config struct {
	Datadir  string
	Port     uint32
	LogLevel int

	DbType      string
	DbDir       string
	DbUrl       string
	EventDbType string
	EventDbDir  string
	EventDbUrl  string

	LiveStoreType       string
	RedisUrl            string
	RedisTxNumOfRetries int

	SchedulerType        string
	ReleaseSweepInterval int64

	AlertManagerURL string
	RolesFile       string
	EscrowAddress   string

	MinIncrementBps       uint32
	BidBuffer             int64
	TotalFractionSupply   uint64
	CustodianUpdateWindow int64

	EnableMetrics bool

	repo      ports.RepoManager
	liveStore ports.LiveStore
	scheduler ports.SchedulerService
	authority ports.RoleAuthority
	alerts    ports.Alerts
	metrics   *metrics.Service
	svc       application.Service
	adminSvc  application.AdminService
}

func (c *Config) String() string {
	clone := *c
	if clone.DbUrl != "" {
		clone.DbUrl = "••••••"
	}
	if clone.EventDbUrl != "" {
		clone.EventDbUrl = "••••••"
	}
	json, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

// DefaultPort is where the http api listens unless configured otherwise.
const DefaultPort = 7080

var (
	defaultDatadir              = appDataDir()
	defaultPort                 = uint(DefaultPort)
	defaultLogLevel             = 4
	defaultDbType               = "sqlite"
	defaultEventDbType          = "badger"
	defaultLiveStoreType        = "inmemory"
	defaultRedisTxNumOfRetries  = 10
	defaultSchedulerType        = "gocron"
	defaultReleaseSweepInterval = int64(60)
	defaultEscrowAddress        = "custodyd-escrow"
	defaultMinIncrementBps      = uint(domain.DefaultMinIncrementBps)
	defaultBidBuffer            = int64(domain.DefaultBidBuffer)
	defaultTotalFractionSupply  = uint64(domain.DefaultTotalFractionSupply)
	defaultCustodianUpdateWin   = int64(domain.DefaultCustodianUpdateWindow)
)

func env(values ...string) []string {
	vars := make([]string, 0, len(values))
	for _, v := range values {
		vars = append(vars, envPrefix+v)
	}
	return vars
}

var (
	Datadir = &cli.StringFlag{
		Name:    "datadir",
		Usage:   "directory to store data",
		EnvVars: env("DATADIR"),
		Value:   defaultDatadir,
	}
	Port = &cli.UintFlag{
		Name:    "port",
		Usage:   "port of the HTTP API",
		EnvVars: env("PORT"),
		Value:   defaultPort,
	}
	LogLevel = &cli.IntFlag{
		Name:    "log-level",
		Usage:   "logging level, from 0 (panic) to 6 (trace)",
		EnvVars: env("LOG_LEVEL"),
		Value:   defaultLogLevel,
	}
	DbType = &cli.StringFlag{
		Name:    "db-type",
		Usage:   "ledger db type, one of " + supportedDbs.String(),
		EnvVars: env("DB_TYPE"),
		Value:   defaultDbType,
	}
	DbUrl = &cli.StringFlag{
		Name:    "pg-db-url",
		Usage:   "postgres url of the ledger db, required if db type is postgres",
		EnvVars: env("PG_DB_URL"),
	}
	EventDbType = &cli.StringFlag{
		Name:    "event-db-type",
		Usage:   "event db type, one of " + supportedEventDbs.String(),
		EnvVars: env("EVENT_DB_TYPE"),
		Value:   defaultEventDbType,
	}
	EventDbUrl = &cli.StringFlag{
		Name:    "pg-event-db-url",
		Usage:   "postgres url of the event db, required if event db type is postgres",
		EnvVars: env("PG_EVENT_DB_URL"),
	}
	LiveStoreType = &cli.StringFlag{
		Name:    "live-store-type",
		Usage:   "store of funds and registries, one of " + supportedLiveStores.String(),
		EnvVars: env("LIVE_STORE_TYPE"),
		Value:   defaultLiveStoreType,
	}
	RedisUrl = &cli.StringFlag{
		Name:    "redis-url",
		Usage:   "redis url, required if live store type is redis",
		EnvVars: env("REDIS_URL"),
	}
	RedisTxNumOfRetries = &cli.IntFlag{
		Name:    "redis-num-of-retries",
		Usage:   "max number of retries of a conflicting redis transaction",
		EnvVars: env("REDIS_NUM_OF_RETRIES"),
		Value:   defaultRedisTxNumOfRetries,
	}
	SchedulerType = &cli.StringFlag{
		Name:    "scheduler-type",
		Usage:   "scheduler type, one of " + supportedSchedulers.String(),
		EnvVars: env("SCHEDULER_TYPE"),
		Value:   defaultSchedulerType,
	}
	ReleaseSweepInterval = &cli.Int64Flag{
		Name:    "release-sweep-interval",
		Usage:   "seconds between two release sweeps of the active vaults",
		EnvVars: env("RELEASE_SWEEP_INTERVAL"),
		Value:   defaultReleaseSweepInterval,
	}
	AlertManagerURL = &cli.StringFlag{
		Name:    "alert-manager-url",
		Usage:   "Prometheus Alertmanager url, alerts are disabled if unset",
		EnvVars: env("ALERT_MANAGER_URL"),
	}
	RolesFile = &cli.StringFlag{
		Name:    "roles-file",
		Usage:   "path of the json/yaml file listing the role grants",
		EnvVars: env("ROLES_FILE"),
	}
	EscrowAddress = &cli.StringFlag{
		Name:    "escrow-address",
		Usage:   "account that holds tokens and fractions in protocol custody",
		EnvVars: env("ESCROW_ADDRESS"),
		Value:   defaultEscrowAddress,
	}
	MinIncrementBps = &cli.UintFlag{
		Name:    "min-increment-bps",
		Usage:   "min increase of a new bid over the previous one, in basis points",
		EnvVars: env("MIN_INCREMENT_BPS"),
		Value:   defaultMinIncrementBps,
	}
	BidBuffer = &cli.Int64Flag{
		Name:    "bid-buffer",
		Usage:   "seconds an auction is extended by when a bid lands close to its end",
		EnvVars: env("BID_BUFFER"),
		Value:   defaultBidBuffer,
	}
	TotalFractionSupply = &cli.Uint64Flag{
		Name:    "total-fraction-supply",
		Usage:   "number of fractions an item is split into when fractionalized",
		EnvVars: env("TOTAL_FRACTION_SUPPLY"),
		Value:   defaultTotalFractionSupply,
	}
	CustodianUpdateWindow = &cli.Int64Flag{
		Name:    "custodian-update-window",
		Usage:   "seconds a custodian update request stays valid",
		EnvVars: env("CUSTODIAN_UPDATE_WINDOW"),
		Value:   defaultCustodianUpdateWin,
	}
	EnableMetrics = &cli.BoolFlag{
		Name:    "enable-metrics",
		Usage:   "expose prometheus metrics at /metrics",
		EnvVars: env("ENABLE_METRICS"),
		Value:   true,
	}
)

var Flags = []cli.Flag{
	Datadir,
	Port,
	LogLevel,
	DbType,
	DbUrl,
	EventDbType,
	EventDbUrl,
	LiveStoreType,
	RedisUrl,
	RedisTxNumOfRetries,
	SchedulerType,
	ReleaseSweepInterval,
	AlertManagerURL,
	RolesFile,
	EscrowAddress,
	MinIncrementBps,
	BidBuffer,
	TotalFractionSupply,
	CustodianUpdateWindow,
	EnableMetrics,
}

func LoadConfig(c *cli.Context) (*Config, error) {
	if err := initDatadir(c); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %s", err)
	}

	dbPath := filepath.Join(c.String(Datadir.Name), "db")

	var eventDbUrl string
	if c.String(EventDbType.Name) == "postgres" {
		eventDbUrl = c.String(EventDbUrl.Name)
		if eventDbUrl == "" {
			return nil, fmt.Errorf("event db type set to 'postgres' but event db url is missing")
		}
	}

	var dbUrl string
	if c.String(DbType.Name) == "postgres" {
		dbUrl = c.String(DbUrl.Name)
		if dbUrl == "" {
			return nil, fmt.Errorf("db type set to 'postgres' but db url is missing")
		}
	}

	var redisUrl string
	if c.String(LiveStoreType.Name) == "redis" {
		redisUrl = c.String(RedisUrl.Name)
		if redisUrl == "" {
			return nil, fmt.Errorf("live store type set to 'redis' but redis url is missing")
		}
	}

	return &Config{
		Datadir:               c.String(Datadir.Name),
		Port:                  uint32(c.Uint(Port.Name)),
		LogLevel:              c.Int(LogLevel.Name),
		DbType:                c.String(DbType.Name),
		DbDir:                 dbPath,
		DbUrl:                 dbUrl,
		EventDbType:           c.String(EventDbType.Name),
		EventDbDir:            dbPath,
		EventDbUrl:            eventDbUrl,
		LiveStoreType:         c.String(LiveStoreType.Name),
		RedisUrl:              redisUrl,
		RedisTxNumOfRetries:   c.Int(RedisTxNumOfRetries.Name),
		SchedulerType:         c.String(SchedulerType.Name),
		ReleaseSweepInterval:  c.Int64(ReleaseSweepInterval.Name),
		AlertManagerURL:       c.String(AlertManagerURL.Name),
		RolesFile:             c.String(RolesFile.Name),
		EscrowAddress:         c.String(EscrowAddress.Name),
		MinIncrementBps:       uint32(c.Uint(MinIncrementBps.Name)),
		BidBuffer:             c.Int64(BidBuffer.Name),
		TotalFractionSupply:   c.Uint64(TotalFractionSupply.Name),
		CustodianUpdateWindow: c.Int64(CustodianUpdateWindow.Name),
		EnableMetrics:         c.Bool(EnableMetrics.Name),
	}, nil
}

func initDatadir(c *cli.Context) error {
	datadir := c.String(Datadir.Name)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0o755)
	}
	return nil
}

func appDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".custodyd"
	}
	return filepath.Join(home, ".custodyd")
}

func (c *Config) Validate() error {
	if !supportedEventDbs.supports(c.EventDbType) {
		return fmt.Errorf(
			"event db type not supported, please select one of: %s",
			supportedEventDbs,
		)
	}
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedSchedulers.supports(c.SchedulerType) {
		return fmt.Errorf(
			"scheduler type not supported, please select one of: %s",
			supportedSchedulers,
		)
	}
	if !supportedLiveStores.supports(c.LiveStoreType) {
		return fmt.Errorf(
			"live store type not supported, please select one of: %s",
			supportedLiveStores,
		)
	}
	if c.LogLevel < 0 || c.LogLevel > int(log.TraceLevel) {
		return fmt.Errorf("log level must be in range [0, %d]", log.TraceLevel)
	}
	if c.Port == 0 {
		return fmt.Errorf("missing port")
	}
	if c.ReleaseSweepInterval <= 0 {
		return fmt.Errorf("release sweep interval must be positive")
	}
	if c.MinIncrementBps > domain.BasisPoints {
		return fmt.Errorf("min increment must be at most %d bps", domain.BasisPoints)
	}
	if c.BidBuffer < 0 {
		return fmt.Errorf("bid buffer must not be negative")
	}
	if c.TotalFractionSupply == 0 {
		return fmt.Errorf("total fraction supply must be positive")
	}
	if c.CustodianUpdateWindow <= 0 {
		return fmt.Errorf("custodian update window must be positive")
	}
	if c.EscrowAddress == "" {
		return fmt.Errorf("missing escrow address")
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.liveStoreService(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	if err := c.authorityService(); err != nil {
		return err
	}
	if err := c.alertsService(); err != nil {
		return err
	}
	if err := c.metricsService(); err != nil {
		return err
	}
	if err := c.appService(); err != nil {
		return err
	}
	if err := c.adminService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

func (c *Config) AdminService() (application.AdminService, error) {
	if c.adminSvc == nil {
		if err := c.adminService(); err != nil {
			return nil, err
		}
	}
	return c.adminSvc, nil
}

func (c *Config) RoleAuthority() ports.RoleAuthority {
	return c.authority
}

// Metrics returns nil if metrics are disabled.
func (c *Config) Metrics() *metrics.Service {
	return c.metrics
}

func (c *Config) repoManager() error {
	var eventStoreConfig []interface{}
	var dataStoreConfig []interface{}
	logger := log.New()
	logger.SetLevel(log.Level(c.LogLevel))

	switch c.EventDbType {
	case "badger":
		eventStoreConfig = []interface{}{c.EventDbDir, logger}
	case "postgres":
		eventStoreConfig = []interface{}{c.EventDbUrl, true}
	default:
		return fmt.Errorf("unknown event db type")
	}

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		dataStoreConfig = []interface{}{c.DbDir}
	case "postgres":
		dataStoreConfig = []interface{}{c.DbUrl, true}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		EventStoreType:   c.EventDbType,
		DataStoreType:    c.DbType,
		EventStoreConfig: eventStoreConfig,
		DataStoreConfig:  dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) liveStoreService() error {
	var liveStoreSvc ports.LiveStore
	switch c.LiveStoreType {
	case "inmemory":
		liveStoreSvc = inmemorylivestore.NewLiveStore()
	case "redis":
		redisOpts, err := redis.ParseURL(c.RedisUrl)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		liveStoreSvc = redislivestore.NewLiveStore(rdb, c.RedisTxNumOfRetries)
	default:
		return fmt.Errorf("unknown liveStore type")
	}

	c.liveStore = liveStoreSvc
	return nil
}

func (c *Config) schedulerService() error {
	var svc ports.SchedulerService
	switch c.SchedulerType {
	case "gocron":
		svc = timescheduler.NewScheduler()
	case "ticker":
		svc = tickerscheduler.NewScheduler()
	default:
		return fmt.Errorf("unknown scheduler type")
	}

	c.scheduler = svc
	return nil
}

func (c *Config) authorityService() error {
	if c.RolesFile == "" {
		log.Warn("no roles file set, grants must be added at runtime")
		svc, err := authority.NewStaticAuthority()
		if err != nil {
			return err
		}
		c.authority = svc
		return nil
	}

	svc, err := authority.NewFromFile(c.RolesFile)
	if err != nil {
		return fmt.Errorf("failed to load roles file: %s", err)
	}
	c.authority = svc
	return nil
}

func (c *Config) alertsService() error {
	if c.AlertManagerURL == "" {
		return nil
	}

	c.alerts = alertsmanager.NewService(c.AlertManagerURL)
	return nil
}

func (c *Config) metricsService() error {
	if !c.EnableMetrics {
		return nil
	}

	c.metrics = metrics.NewService()
	c.metrics.RegisterEventHandlers(c.repo.Events())
	return nil
}

func (c *Config) appService() error {
	if c.repo == nil || c.liveStore == nil || c.authority == nil {
		return fmt.Errorf("services not initialized, run Validate first")
	}

	opts := []application.Option{
		application.WithEscrowAddress(c.EscrowAddress),
		application.WithCustodianUpdateWindow(
			time.Duration(c.CustodianUpdateWindow) * time.Second,
		),
		application.WithAuctionParams(domain.AuctionParams{
			TotalFractionSupply: c.TotalFractionSupply,
			MinIncrementBps:     c.MinIncrementBps,
			BidBuffer:           c.BidBuffer,
		}),
	}
	if c.alerts != nil {
		opts = append(opts, application.WithAlerts(c.alerts))
	}
	if c.scheduler != nil {
		opts = append(opts, application.WithScheduler(
			c.scheduler, time.Duration(c.ReleaseSweepInterval)*time.Second,
		))
	}

	svc, err := application.NewService(c.repo, c.liveStore, c.authority, opts...)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

func (c *Config) adminService() error {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return err
		}
	}

	svc, err := application.NewAdminService(c.svc)
	if err != nil {
		return err
	}
	c.adminSvc = svc
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	sort.Strings(types)
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
