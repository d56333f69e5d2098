// marcoctl 交互式调试工具：向键盘下发按键颜色和屏幕文字指令，查看剪贴板槽位。
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/abiosoft/ishell"
	"github.com/wfunc/marco-listener/internal/config"
	"github.com/wfunc/marco-listener/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "配置文件路径")
		portName   = flag.String("port", "", "串口设备，覆盖配置")
	)
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()
	if *portName != "" {
		cfg.Serial.Port = *portName
		cfg.Serial.KnownSerial = ""
	}
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	code := run(cfg, flag.Args())
	logger.Cleanup()
	os.Exit(code)
}

// run 带参数时执行一条命令后返回，否则进入交互模式
func run(cfg *config.Config, args []string) int {
	sess := newSession(cfg)
	defer sess.Close()

	shell := ishell.New()
	shell.Set(sessionKey, sess)
	shell.SetPrompt("marco > ")
	for _, cmd := range commands {
		shell.AddCmd(cmd)
	}

	if len(args) > 0 {
		if err := shell.Process(args...); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	shell.Println("marcoctl，输入 help 查看命令")
	shell.Run()
	return 0
}
