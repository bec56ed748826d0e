package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
	"github.com/tsinghua-fib-lab/minqueue-tls/sim/bridge"
	"github.com/tsinghua-fib-lab/minqueue-tls/sim/queuesim"
	"github.com/tsinghua-fib-lab/minqueue-tls/task"
	"github.com/tsinghua-fib-lab/minqueue-tls/utils/config"
)

var (
	// 配置文件路径，命令行参数优先于配置文件
	configPath = flag.String("config", "", "config file path (optional)")
	scenario   = flag.String("scenario", "", "simulation scenario config path (required)")
	tls        = flag.String("tls", "", "id of the controlled traffic light (required)")
	outDir     = flag.String("out", "", "output directory, created if missing (required)")
	minGreen   = flag.Float64("min-green", 8, "minimum green time in seconds")
	step       = flag.Float64("step", 1, "simulation step length in seconds")
	until      = flag.Float64("until", 0, "hard stop time in seconds (0 means no limit)")
	noGUI      = flag.Bool("nogui", false, "run the simulator headless (gui by default)")
	policy     = flag.String("policy", "", "phase selection policy: greedy|axis")
	backend    = flag.String("backend", "", "simulation backend: queuesim|bridge")
	bridgeAddr = flag.String("bridge", "", "bridge socket path or host:port")
	simArgs    = flag.String("sim-args", "", "extra simulator arguments, space separated")
	// 状态查询服务监听地址，设置为空则不启动
	listen = flag.String("listen", "", "status service listening address (empty means disabled)")
	// 分布式模式syncer地址，如果设置为空则激活独立部署模式
	syncerAddr = flag.String("syncer", "", "syncer address (empty means standalone mode), e.g. http://localhost:53001")
	// 地图输入的缓存地址，设置为空则禁用缓存功能
	cacheDir = flag.String("cache", "data/", "input cache dir path (empty means disable cache)")
	inspect  = flag.Bool("inspect", false, "print phases and inbound/outbound edges of the traffic light, then exit")

	// log
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	log = logrus.WithField("module", "minqueue")
)

// loadConfig 读取配置文件并以显式给出的命令行参数覆盖
func loadConfig() (config.Config, error) {
	c := config.Default()
	if *configPath != "" {
		var err error
		if c, err = config.Load(*configPath); err != nil {
			return c, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "scenario":
			c.Session.Scenario = *scenario
		case "tls":
			c.Session.TLS = *tls
		case "out":
			c.Session.Output = *outDir
		case "nogui":
			c.Session.GUI = !*noGUI
		case "sim-args":
			c.Session.SimArgs = strings.Fields(*simArgs)
		case "min-green":
			c.Control.MinGreen = *minGreen
		case "step":
			c.Control.Step = *step
		case "until":
			c.Control.Until = *until
		case "policy":
			c.Policy.Type = *policy
		case "backend":
			c.Backend.Type = *backend
		case "bridge":
			c.Backend.Bridge.Address = *bridgeAddr
			if !isFlagSet("backend") {
				c.Backend.Type = config.BackendBridge
			}
		case "listen":
			c.Status.Listen = *listen
		case "syncer":
			c.Status.Syncer = *syncerAddr
		}
	})
	return c, nil
}

func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		found = found || f.Name == name
	})
	return found
}

// newSimulation 按配置创建仿真后端
func newSimulation(c config.Config) entity.ISimulation {
	if c.Backend.Type == config.BackendBridge {
		b := c.Backend.Bridge
		return bridge.New(bridge.Options{
			Network:      b.Network,
			Address:      b.Address,
			CallTimeout:  b.CallTimeout,
			DialRetries:  b.DialRetries,
			DialInterval: b.DialInterval,
		})
	}
	return queuesim.New(*cacheDir)
}

// kindOf 致命错误的类别，用于一行诊断信息
func kindOf(err error) string {
	switch {
	case errors.Is(err, entity.ErrConfiguration):
		return "configuration error"
	case errors.Is(err, entity.ErrSimulationConnectivity):
		return "simulation connectivity error"
	case errors.Is(err, entity.ErrInvalidCommand):
		return "invalid command error"
	default:
		return "error"
	}
}

// diagnostic 致命错误的一行诊断信息<kind>: <message>，去掉包装链中重复的类别
func diagnostic(err error) string {
	kind := kindOf(err)
	msg := err.Error()
	if msg == kind {
		return kind
	}
	if kind != "error" {
		msg = strings.Replace(msg, kind+": ", "", 1)
	}
	return kind + ": " + msg
}

func run(ctx context.Context) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	rc, err := config.NewRuntimeConfig(c)
	if err != nil {
		return err
	}
	log.Debugf("%+v", c)
	if err := os.MkdirAll(c.Session.Output, 0o755); err != nil {
		return fmt.Errorf("%w: create output dir: %v", entity.ErrConfiguration, err)
	}
	t := task.NewContext(rc, newSimulation(c))
	if *inspect {
		res, err := t.Inspect(ctx)
		if err != nil {
			return err
		}
		return res.Print(os.Stdout)
	}
	reason, err := t.Run(ctx)
	if err != nil {
		return err
	}
	log.Infof("control finished: %s", reason)
	return nil
}

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	// log: 运行时才修改
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, diagnostic(err))
		stop()
		os.Exit(1)
	}
}
