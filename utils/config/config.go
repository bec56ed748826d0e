package config

import (
	"fmt"
	"os"
	"time"

	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
	"gopkg.in/yaml.v2"
)

const (
	BackendQueueSim = "queuesim" // 进程内点排队仿真器
	BackendBridge   = "bridge"   // 外部仿真器桥接

	DefaultCallTimeout  = 10 * time.Second
	DefaultDialRetries  = 20
	DefaultDialInterval = 500 * time.Millisecond
)

// Default 默认配置
func Default() Config {
	return Config{
		Session: Session{
			GUI: true,
		},
		Control: Control{
			MinGreen: 8,
			Step:     1,
		},
		Policy: Policy{
			Type:         "greedy",
			ApproachKind: "lane",
		},
		Backend: Backend{
			Type: BackendQueueSim,
			Bridge: Bridge{
				Network:      "unix",
				CallTimeout:  DefaultCallTimeout,
				DialRetries:  DefaultDialRetries,
				DialInterval: DefaultDialInterval,
			},
		},
	}
}

// Load 读取YAML配置文件，未出现的配置项保留默认值
// 说明：使用UnmarshalStrict，未知字段视为配置错误
func Load(path string) (Config, error) {
	c := Default()
	file, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("%w: read config %s: %v", entity.ErrConfiguration, path, err)
	}
	if err := yaml.UnmarshalStrict(file, &c); err != nil {
		return c, fmt.Errorf("%w: parse config %s: %v", entity.ErrConfiguration, path, err)
	}
	return c, nil
}

// RuntimeConfig 运行时配置
// 功能：校验后的只读配置，会话开始时构造一次，各组件只读取不修改
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 控制循环配置

	ApproachKind entity.ApproachKind // 解析后的进口道度量单位
}

// NewRuntimeConfig 校验配置并构造运行时配置
// 参数：config-合并了命令行参数后的配置
// 返回：运行时配置；任一配置项不合法时返回ErrConfiguration
func NewRuntimeConfig(config Config) (*RuntimeConfig, error) {
	s := config.Session
	if s.Scenario == "" {
		return nil, fmt.Errorf("%w: scenario is required", entity.ErrConfiguration)
	}
	if s.TLS == "" {
		return nil, fmt.Errorf("%w: tls is required", entity.ErrConfiguration)
	}
	if s.Output == "" {
		return nil, fmt.Errorf("%w: output directory is required", entity.ErrConfiguration)
	}
	c := config.Control
	switch {
	case c.MinGreen < 0:
		return nil, fmt.Errorf("%w: min green must be >= 0, got %v", entity.ErrConfiguration, c.MinGreen)
	case c.Step <= 0:
		return nil, fmt.Errorf("%w: step must be > 0, got %v", entity.ErrConfiguration, c.Step)
	case c.Until < 0:
		return nil, fmt.Errorf("%w: until must be >= 0, got %v", entity.ErrConfiguration, c.Until)
	case c.DecisionInterval < 0:
		return nil, fmt.Errorf("%w: decision interval must be >= 0, got %v", entity.ErrConfiguration, c.DecisionInterval)
	}
	kind, err := entity.ParseApproachKind(config.Policy.ApproachKind)
	if err != nil {
		return nil, err
	}
	switch config.Policy.Type {
	case "greedy":
		if len(config.Policy.Axes) > 0 {
			log.Warnf("policy greedy ignores %d configured axes", len(config.Policy.Axes))
		}
	case "axis":
		if len(config.Policy.Axes) < 2 {
			return nil, fmt.Errorf("%w: axis policy needs at least 2 axes", entity.ErrConfiguration)
		}
	default:
		return nil, fmt.Errorf("%w: unknown policy %q (greedy|axis)", entity.ErrConfiguration, config.Policy.Type)
	}
	b := config.Backend
	switch b.Type {
	case BackendQueueSim:
	case BackendBridge:
		if b.Bridge.Address == "" {
			return nil, fmt.Errorf("%w: bridge backend needs an address", entity.ErrConfiguration)
		}
		if b.Bridge.Network != "unix" && b.Bridge.Network != "tcp" {
			return nil, fmt.Errorf("%w: unknown bridge network %q (unix|tcp)", entity.ErrConfiguration, b.Bridge.Network)
		}
		if b.Bridge.CallTimeout <= 0 {
			return nil, fmt.Errorf("%w: bridge call timeout must be > 0", entity.ErrConfiguration)
		}
	default:
		return nil, fmt.Errorf("%w: unknown backend %q (queuesim|bridge)", entity.ErrConfiguration, b.Type)
	}

	return &RuntimeConfig{
		All:          config,
		C:            c,
		ApproachKind: kind,
	}, nil
}
