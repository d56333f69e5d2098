// listener 轮询串口并把收到的文本原样打印到标准输出，
// 文本中出现标记串时额外打印一行提示。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wfunc/marco-listener/internal/config"
	"github.com/wfunc/marco-listener/internal/hardware"
	"github.com/wfunc/marco-listener/internal/listener"
	"github.com/wfunc/marco-listener/internal/logger"
	"go.uber.org/zap"
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

	code := run(cfg)
	logger.Cleanup()
	os.Exit(code)
}

func run(cfg *config.Config) int {
	log := logger.WithModule("listener")

	port, name, err := hardware.OpenFromConfig(&cfg.Serial, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开串口失败: %v\n", err)
		log.Error("打开串口失败", zap.Error(err))
		return 1
	}
	defer port.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := listener.New(port, os.Stdout, listener.OptionsFrom(name, &cfg.Listener))
	err = l.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return 0
	}

	fmt.Fprintf(os.Stderr, "轮询终止: %v\n", err)
	return 1
}
