package main

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/marco-listener/internal/config"
	"github.com/wfunc/marco-listener/internal/logger"
	"go.uber.org/zap/zapcore"
)

func TestReloadConfigUpdatesLevelInPlace(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Log.Output = "stdout"
	require.NoError(t, logger.Init(&cfg.Log))
	t.Cleanup(func() { _ = logger.SetLevel("info") })

	s := NewServer(cfg)
	t.Cleanup(s.cancel)
	cached := s.logger
	moduleLogger := logger.WithModule("listener")

	newCfg := *cfg
	newCfg.Log.Level = "debug"

	// 热更新和其他 goroutine 的日志输出并发进行
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			s.logger.Debug("concurrent")
		}
	}()
	s.reloadConfig(&newCfg)
	wg.Wait()

	assert.Same(t, cached, s.logger)
	assert.Equal(t, "debug", logger.Level())
	assert.True(t, moduleLogger.Core().Enabled(zapcore.DebugLevel))

	// 级别未变化时不做任何事
	s.reloadConfig(&newCfg)
	assert.Equal(t, "debug", logger.Level())
}
