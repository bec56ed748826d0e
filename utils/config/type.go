package config

import "time"

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 功能：定义数据输入路径的配置结构，支持多种数据源
// 说明：支持MongoDB数据库和文件系统两种数据源，支持缓存机制
type InputPath struct {
	DB        string `yaml:"db"`                   // 数据库名
	Col       string `yaml:"col"`                  // 集合名
	Cache     string `yaml:"cache,omitempty"`      // 缓存文件名，为空则采用默认路径{db}.{col}.pb
	OnlyCache bool   `yaml:"only_cache,omitempty"` // 只从缓存中获取
	File      string `yaml:"file,omitempty"`       // 文件路径（优先级高于MongoDB）
}

// GetDb 获取数据库名
func (p InputPath) GetDb() string {
	return p.DB
}

// GetColl 获取集合名
func (p InputPath) GetColl() string {
	return p.Col
}

// GetCachePath 获取缓存文件路径
// 说明：未指定时使用默认命名规则{数据库名}.{集合名}.pb
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col + ".pb"
}

// Input 地图输入配置
type Input struct {
	URI string    `yaml:"uri,omitempty"` // MongoDB连接字符串
	Map InputPath `yaml:"map"`           // 地图
}

// Session 控制会话的目标
// 说明：一般由命令行给出，命令行参数优先于配置文件
type Session struct {
	Scenario string   `yaml:"scenario"`           // 场景配置文件路径
	TLS      string   `yaml:"tls"`                // 受控信号灯ID
	Output   string   `yaml:"output"`             // 输出目录（不存在时创建）
	GUI      bool     `yaml:"gui"`                // 是否使用图形界面，默认使用
	SimArgs  []string `yaml:"sim_args,omitempty"` // 透传给仿真器的参数
}

// Control 控制循环配置
type Control struct {
	MinGreen         float64 `yaml:"min_green"`                   // 最小绿灯时间（秒）
	Step             float64 `yaml:"step"`                        // 仿真步长（秒）
	Until            float64 `yaml:"until,omitempty"`             // 强制结束时刻（秒），0表示不限制
	DecisionInterval float64 `yaml:"decision_interval,omitempty"` // 选相评估间隔（秒），0表示每步评估
	AlignOnStart     bool    `yaml:"align_on_start,omitempty"`    // 第一步之前先选相并下发
}

// Axis 方向轴配置
type Axis struct {
	Name       string   `yaml:"name"`
	Phase      int32    `yaml:"phase"`      // 独占服务该轴的相位
	Approaches []string `yaml:"approaches"` // 属于该轴的进口道
}

// Policy 选相策略配置
type Policy struct {
	Type         string `yaml:"type"`                    // greedy|axis
	ApproachKind string `yaml:"approach_kind,omitempty"` // lane|edge，默认lane
	Axes         []Axis `yaml:"axes,omitempty"`          // 方向轴划分（仅axis策略）
}

// Bridge 外部仿真器桥接配置
type Bridge struct {
	Network      string        `yaml:"network,omitempty"`       // unix|tcp，默认unix
	Address      string        `yaml:"address"`                 // 套接字路径或host:port
	CallTimeout  time.Duration `yaml:"call_timeout,omitempty"`  // 单次调用超时
	DialRetries  int           `yaml:"dial_retries,omitempty"`  // 连接重试次数
	DialInterval time.Duration `yaml:"dial_interval,omitempty"` // 连接重试间隔
}

// Backend 仿真后端配置
type Backend struct {
	Type   string `yaml:"type"` // queuesim|bridge
	Bridge Bridge `yaml:"bridge,omitempty"`
}

// Status 状态查询服务配置
type Status struct {
	Listen string `yaml:"listen,omitempty"` // 监听地址，为空则不启动
	Syncer string `yaml:"syncer,omitempty"` // syncer地址，为空则为独立部署模式
	PbID   int32  `yaml:"pb_id,omitempty"`  // 状态查询接口使用的数字路口ID
}

// Config YAML配置文件的根结构
type Config struct {
	Session Session `yaml:"session"`
	Control Control `yaml:"control"`
	Policy  Policy  `yaml:"policy"`
	Backend Backend `yaml:"backend"`
	Status  Status  `yaml:"status,omitempty"`
}
