package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/marmos91/dittoweb/pkg/admission"
	"github.com/marmos91/dittoweb/pkg/config"
)

// cliOptions holds the command-line flags. Only flags the user actually set
// override the loaded configuration.
type cliOptions struct {
	configPath string
	baseDir    string
	port       int
	workers    int
	queueSize  int
	schedule   string
	logLevel   string
}

func registerFlags(fs *flag.FlagSet) *cliOptions {
	o := &cliOptions{}
	fs.StringVar(&o.configPath, "config", "", "Path to the configuration file (default: $XDG_CONFIG_HOME/dittoweb/config.yaml)")
	fs.StringVar(&o.baseDir, "d", config.DefaultBaseDir, "Base directory served as the document root")
	fs.IntVar(&o.port, "p", config.DefaultWebPort, "Port to listen on")
	fs.IntVar(&o.workers, "t", config.DefaultWorkers, "Number of worker threads")
	fs.IntVar(&o.queueSize, "b", config.DefaultQueueSize, "Capacity of the request queue")
	fs.StringVar(&o.schedule, "s", string(admission.FIFO), "Scheduling policy (FIFO or SFF)")
	fs.StringVar(&o.logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	return o
}

// apply copies explicitly set flags into cfg. Values are checked again by
// config.Validate; the checks here only catch what would otherwise be
// silently accepted.
func (o *cliOptions) apply(fs *flag.FlagSet, cfg *config.Config) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "d":
			cfg.Content.Type = "filesystem"
			cfg.Content.Filesystem["path"] = o.baseDir
		case "p":
			if o.port < 1 {
				err = fmt.Errorf("-p: port must be between 1 and 65535, got %d", o.port)
				return
			}
			cfg.Adapters.Web.Port = o.port
		case "t":
			if o.workers < 1 {
				err = fmt.Errorf("-t: worker count must be positive, got %d", o.workers)
				return
			}
			cfg.Adapters.Web.Workers = o.workers
		case "b":
			if o.queueSize < 1 {
				err = fmt.Errorf("-b: queue capacity must be positive, got %d", o.queueSize)
				return
			}
			cfg.Adapters.Web.QueueSize = o.queueSize
		case "s":
			cfg.Adapters.Web.Schedule = o.schedule
		case "log-level":
			cfg.Logging.Level = strings.ToUpper(o.logLevel)
		}
	})
	return err
}
