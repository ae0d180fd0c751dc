package main

import (
	"github.com/jessevdk/go-flags"

	"go.litevfs.dev/core/logreader"
	mbp "go.litevfs.dev/core/mainboilerplate"
	"go.litevfs.dev/core/pagecache"
	"go.litevfs.dev/core/registry"
	"go.litevfs.dev/core/stores"
	"go.litevfs.dev/core/stores/azure"
	fsstore "go.litevfs.dev/core/stores/fs"
	"go.litevfs.dev/core/stores/gcs"
	"go.litevfs.dev/core/stores/s3"
)

const iniFilename = "litevfs.ini"

var baseCfg = new(struct {
	Log         mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Config      string        `long:"config" env:"CONFIG" default:"litevfs.yaml" description:"Path of the replica configuration YAML"`
	MetricsAddr string        `long:"metrics.addr" env:"METRICS_ADDR" description:"Address to serve Prometheus metrics on; disabled if empty"`
	MetricsPath string        `long:"metrics.path" env:"METRICS_PATH" default:"/metrics" description:"Path under which Prometheus metrics are served"`
})

func main() {
	stores.RegisterProviders(map[string]stores.Constructor{
		"s3":    s3.New,
		"gs":    gcs.New,
		"azure": azure.New,
		"file":  fsstore.New,
	})

	var parser = flags.NewParser(baseCfg, flags.Default)

	parser.LongDescription = `litevfs is a tool for inspecting replicated database replicas:
their replication status and lag, historical transaction indexes, and page
content, live or as of a point in time.

Replicas are configured with a YAML file (--config):

>    replicas:
>      analytics: s3://my-bucket/path/db/
>      reporting: gs://other-bucket/db/
>    maxLag: 60s

Optionally configure litevfs with a '` + iniFilename + `' file in the current working
directory, or with '~/.config/litevfs/` + iniFilename + `'. Use the 'print-config'
sub-command to inspect the tool's current configuration.
`
	mbp.AddPrintConfigCmd(parser, iniFilename)
	addCmdStatus(parser)
	addCmdResolve(parser)
	addCmdReadPage(parser)

	mbp.MustParseConfig(parser, iniFilename)
}

// startup initializes logging and metrics after flags are parsed.
func startup() {
	mbp.InitLog(baseCfg.Log)

	if baseCfg.MetricsAddr != "" {
		mbp.InitMetrics(baseCfg.MetricsAddr, baseCfg.MetricsPath)
	}
}

// newStack loads the replica configuration and builds the reader, cache, and
// registry shared by subcommands.
func newStack() (*registry.Registry, *logreader.Reader, *pagecache.Cache) {
	var cfg, err = registry.LoadConfig(baseCfg.Config)
	mbp.Must(err, "failed to load configuration", "path", baseCfg.Config)

	var reader = logreader.NewReader(cfg.FetchAttempts)
	budget, err := cfg.ParseCacheBudget()
	mbp.Must(err, "failed to parse cache budget")

	var cache = pagecache.NewCache(reader, nil, budget)
	reg, err := registry.NewRegistry(cfg, reader, cache)
	mbp.Must(err, "failed to build replica registry")

	return reg, reader, cache
}
