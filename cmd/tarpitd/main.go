// Command tarpitd is a TCP tarpit daemon. It binds the configured
// addresses, optionally drops privileges, then holds every connection it
// accepts while trickling a banner to each, until interrupted or
// terminated.
//
// Configuration is flags over an optional YAML file (-config), with
// explicitly set flags winning. Repeat -v for more log output; the
// default is silence.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	tarpit "github.com/joeycumines/go-tarpit"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

// sysexits(3) classes, one per failure category.
const (
	exitUsage       = 64
	exitUnavailable = 69
	exitOSErr       = 71
)

// version is the reported build version, intended to be overridden via
// -ldflags "-X main.version=...".
var version = `dev`

type (
	// stringsFlag accumulates repeated occurrences of a flag.
	stringsFlag []string

	// countFlag counts occurrences of a boolean flag.
	countFlag int

	// fileConfig is the YAML configuration schema. Durations are strings
	// in Go syntax, e.g. "10s". Values explicitly set on the command
	// line take precedence.
	fileConfig struct {
		Listen        []string `yaml:"listen"`
		MaxClients    int      `yaml:"max_clients"`
		Delay         string   `yaml:"delay"`
		Timeout       string   `yaml:"timeout"`
		Banner        string   `yaml:"banner"`
		AcceptRate    float64  `yaml:"accept_rate"`
		AcceptBurst   int      `yaml:"accept_burst"`
		VisitorWindow string   `yaml:"visitor_window"`
		User          string   `yaml:"user"`
		Group         string   `yaml:"group"`
		Chroot        string   `yaml:"chroot"`
		Verbose       *int     `yaml:"verbose"`
		Timestamps    *bool    `yaml:"timestamps"`
	}
)

func (x *stringsFlag) String() string { return strings.Join(*x, `,`) }

func (x *stringsFlag) Set(v string) error {
	*x = append(*x, v)
	return nil
}

func (x *countFlag) String() string { return strconv.Itoa(int(*x)) }

func (x *countFlag) Set(string) error {
	*x++
	return nil
}

func (x *countFlag) IsBoolFlag() bool { return true }

// errx logs a fatal error and exits with the given sysexits class.
func errx(log *logiface.Logger[logiface.Event], code int, err error, msg string) {
	log.Err().Err(err).Log(msg)
	os.Exit(code)
}

func main() {
	var (
		listen     stringsFlag
		verbose    countFlag
		maxClients = flag.Int(`max-clients`, 4096, `Best-effort connection limit`)
		delay      = flag.Duration(`delay`, 10*time.Second, `Time between writes to each connection`)
		timeout    = flag.Duration(`timeout`, 30*time.Second, `Socket write timeout`)
		acceptRate = flag.Float64(`accept-rate`, 0, `Cap on accepted connections per second, 0 for none`)
		burst      = flag.Int(`accept-burst`, 0, `Burst size of the accept rate limiter`)
		window     = flag.Duration(`visitor-window`, 0, `Window for repeat-visitor tracking, negative to disable`)
		noStamps   = flag.Bool(`disable-timestamps`, false, `Disable timestamps in logs`)
		configPath = flag.String(`config`, ``, `YAML configuration file`)
		runUser    = flag.String(`user`, ``, `Run as this user and their primary group`)
		runGroup   = flag.String(`group`, ``, `Run as this group`)
		chrootDir  = flag.String(`chroot`, ``, `Chroot to this directory`)
	)
	flag.Var(&listen, `listen`, `Listen address(es) to bind to, repeatable`)
	flag.Var(&verbose, `v`, `Verbose level (repeat for more verbosity)`)
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var fc fileConfig
	if *configPath != `` {
		if err := loadConfig(*configPath, &fc); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitUsage)
		}
	}

	// logging first, so everything after can report through it
	verbosity := int(verbose)
	if !set[`v`] && fc.Verbose != nil {
		verbosity = *fc.Verbose
	}
	timestamps := !*noStamps
	if !set[`disable-timestamps`] && fc.Timestamps != nil {
		timestamps = *fc.Timestamps
	}
	log := newLogger(os.Stderr, verbosity, timestamps)

	log.Info().Str(`version`, version).Log(`init`)

	if !set[`listen`] && len(fc.Listen) != 0 {
		listen = fc.Listen
	}
	if !set[`max-clients`] && fc.MaxClients != 0 {
		*maxClients = fc.MaxClients
	}
	if !set[`accept-rate`] && fc.AcceptRate != 0 {
		*acceptRate = fc.AcceptRate
	}
	if !set[`accept-burst`] && fc.AcceptBurst != 0 {
		*burst = fc.AcceptBurst
	}
	for _, d := range [...]struct {
		flag  string
		value string
		out   *time.Duration
	}{
		{`delay`, fc.Delay, delay},
		{`timeout`, fc.Timeout, timeout},
		{`visitor-window`, fc.VisitorWindow, window},
	} {
		if set[d.flag] || d.value == `` {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			errx(log, exitUsage, err, `config`)
		}
		*d.out = v
	}
	if !set[`user`] && fc.User != `` {
		*runUser = fc.User
	}
	if !set[`group`] && fc.Group != `` {
		*runGroup = fc.Group
	}
	if !set[`chroot`] && fc.Chroot != `` {
		*chrootDir = fc.Chroot
	}

	srv, err := tarpit.New(tarpit.Config{
		Addresses:     listen,
		MaxClients:    *maxClients,
		Delay:         *delay,
		Timeout:       *timeout,
		Banner:        fc.Banner,
		AcceptRate:    *acceptRate,
		AcceptBurst:   *burst,
		VisitorWindow: *window,
		Logger:        log,
	})
	if err != nil {
		errx(log, exitUsage, err, `config`)
	}

	ctx := context.Background()
	if err := srv.Listen(ctx); err != nil {
		errx(log, exitOSErr, err, `listen`)
	}

	// privileges drop after bind, so low ports work, and before serve
	if err := dropPrivileges(log, *runUser, *runGroup, *chrootDir); err != nil {
		errx(log, exitOSErr, err, `privdrop`)
	}

	if err := srv.Run(ctx); err != nil {
		errx(log, exitUnavailable, err, `run`)
	}
}

// newLogger builds the stumpy-backed logger. Verbosity maps 0 to off, 1
// to info, 2 to debug, and anything more to trace.
func newLogger(w io.Writer, verbosity int, timestamps bool) *logiface.Logger[logiface.Event] {
	opts := []stumpy.Option{stumpy.WithWriter(w)}
	if timestamps {
		opts = append(opts, stumpy.WithTimeField(`time`))
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(opts...),
		stumpy.L.WithLevel(verbosityLevel(verbosity)),
	).Logger()
}

func verbosityLevel(verbosity int) logiface.Level {
	switch {
	case verbosity >= 3:
		return logiface.LevelTrace
	case verbosity == 2:
		return logiface.LevelDebug
	case verbosity == 1:
		return logiface.LevelInformational
	default:
		return logiface.LevelDisabled
	}
}

func loadConfig(path string, out *fileConfig) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf(`config %s: %w`, path, err)
	}
	return nil
}

// dropPrivileges applies chroot and setgid/setuid, in that order. A user
// without an explicit group implies that user's primary group. Doing
// nothing is fine and is logged as such.
func dropPrivileges(log *logiface.Logger[logiface.Event], userName, groupName, chrootDir string) error {
	if userName == `` && groupName == `` && chrootDir == `` {
		log.Info().Bool(`enabled`, false).Log(`privdrop`)
		return nil
	}

	uid, gid := -1, -1
	if userName != `` {
		log.Info().Str(`user`, userName).Log(`privdrop`)
		u, err := user.Lookup(userName)
		if err != nil {
			return err
		}
		if uid, err = strconv.Atoi(u.Uid); err != nil {
			return fmt.Errorf(`bad uid %q: %w`, u.Uid, err)
		}
		if gid, err = strconv.Atoi(u.Gid); err != nil {
			return fmt.Errorf(`bad gid %q: %w`, u.Gid, err)
		}
	}
	if groupName != `` {
		log.Info().Str(`group`, groupName).Log(`privdrop`)
		g, err := user.LookupGroup(groupName)
		if err != nil {
			return err
		}
		if gid, err = strconv.Atoi(g.Gid); err != nil {
			return fmt.Errorf(`bad gid %q: %w`, g.Gid, err)
		}
	}
	if chrootDir != `` {
		log.Info().Str(`chroot`, chrootDir).Log(`privdrop`)
		if err := unix.Chroot(chrootDir); err != nil {
			return fmt.Errorf(`chroot: %w`, err)
		}
		if err := os.Chdir(`/`); err != nil {
			return err
		}
	}
	if gid >= 0 {
		if err := unix.Setgroups([]int{gid}); err != nil {
			return fmt.Errorf(`setgroups: %w`, err)
		}
		if err := unix.Setgid(gid); err != nil {
			return fmt.Errorf(`setgid: %w`, err)
		}
	}
	if uid >= 0 {
		if err := unix.Setuid(uid); err != nil {
			return fmt.Errorf(`setuid: %w`, err)
		}
	}
	log.Info().Bool(`enabled`, true).Log(`privdrop`)
	return nil
}
