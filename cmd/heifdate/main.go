// Command heifdate rewrites Exif/XMP date fields of HEIC/HEIF files in
// place, or dumps their box structure.
//
// Usage:
//
//	heifdate -date 2021-04-01T10:30:00 photo.heic [more.heic ...]
//	heifdate -config batch.yaml
//	heifdate -dump photo.heic
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/trevormaggs/heifpatch/heif"
	"github.com/trevormaggs/heifpatch/patch"
)

// batchConfig is the YAML batch description accepted by -config.
type batchConfig struct {
	Date     string   `yaml:"date"`
	Files    []string `yaml:"files"`
	SkipExif bool     `yaml:"skip_exif"`
	SkipXMP  bool     `yaml:"skip_xmp"`
	XMPProps []string `yaml:"xmp_properties"`
}

// loadBatchConfig merges the YAML batch file, the -date flag and positional
// arguments. cfg.Files is only seeded from the arguments outside the config
// path: unmarshalling over a pre-seeded slice leaves it in place when the
// YAML carries no files key, and the merge below would then list every
// positional path twice.
func loadBatchConfig(configPath, dateArg string, args []string) (batchConfig, error) {
	if configPath == "" {
		return batchConfig{Date: dateArg, Files: args}, nil
	}
	buf, err := os.ReadFile(configPath)
	if err != nil {
		return batchConfig{}, err
	}
	var cfg batchConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return batchConfig{}, err
	}
	if cfg.Date == "" {
		cfg.Date = dateArg
	}
	cfg.Files = append(cfg.Files, args...)
	return cfg, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func main() {
	var (
		dateArg    = flag.String("date", "", "target date-time to write")
		configArg  = flag.String("config", "", "YAML batch config file")
		dumpArg    = flag.Bool("dump", false, "print the box tree and exit")
		logFileArg = flag.String("logfile", "", "append logs to a rotating file instead of stderr")
		verboseArg = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	log := logrus.New()
	if *verboseArg {
		log.SetLevel(logrus.DebugLevel)
	}
	if *logFileArg != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   *logFileArg,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		})
	}

	if *dumpArg {
		for _, path := range flag.Args() {
			if err := dumpTree(path); err != nil {
				log.WithFields(logrus.Fields{"file": path, "error": err}).Fatal("dump failed")
			}
		}
		return
	}

	cfg, err := loadBatchConfig(*configArg, *dateArg, flag.Args())
	if err != nil {
		log.WithField("error", err).Fatal("cannot load config")
	}
	if cfg.Date == "" || len(cfg.Files) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	when, err := parseDate(cfg.Date)
	if err != nil {
		log.WithField("error", err).Fatal("bad date")
	}

	failed := 0
	for _, path := range cfg.Files {
		if err := patchOne(log, path, when, cfg); err != nil {
			log.WithFields(logrus.Fields{"file": path, "error": err}).Error("patch failed")
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func patchOne(log *logrus.Logger, path string, when time.Time, cfg batchConfig) error {
	p, err := patch.Open(path)
	if err != nil {
		return err
	}
	defer p.Close()
	p.SetLogger(log)

	var s patch.Summary
	if !cfg.SkipExif {
		if s.Exif, err = p.PatchExifDates(when); err != nil {
			return err
		}
	}
	if !cfg.SkipXMP {
		if s.XMP, err = p.PatchXMPDates(when, cfg.XMPProps...); err != nil {
			return err
		}
	}
	log.WithFields(logrus.Fields{
		"file": path,
		"exif": s.Exif,
		"xmp":  s.XMP,
	}).Info("patched")
	return nil
}

func dumpTree(path string) error {
	hf, err := heif.OpenFile(path)
	if err != nil {
		return err
	}
	defer hf.Close()
	hf.Tree().Dump(os.Stdout)
	return nil
}
