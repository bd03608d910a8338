package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	jsonFolder := "../../config"
	jsonFile := "config.json"
	dataJsonFile := "dataconfig.json"
	cfg, dcfg, err := LoadConfig(jsonFolder, jsonFile, dataJsonFile)
	require.NoError(t, err)

	assert.Equal(t, "yellow_tripdata_*.parquet", cfg.FilePattern)
	assert.Equal(t, 7, cfg.Decompose.Seasonal)
	assert.Equal(t, time.Hour, time.Duration(cfg.RefreshInterval))
	assert.Equal(t, "fare_amount", dcfg.Target)
	assert.Equal(t, "tpep_pickup_datetime", dcfg.GetColumn("pickup"))

	// 第二次调用返回同一实例
	cfg2, _, err := LoadConfig("does-not-exist", jsonFile, dataJsonFile)
	require.NoError(t, err)
	assert.Same(t, cfg, cfg2)
}

func writeConfigs(t *testing.T, cfg, dcfg string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfg), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataconfig.json"), []byte(dcfg), 0644))
	return dir
}

func TestLoadConfigsDefaults(t *testing.T) {
	dir := writeConfigs(t, `{"data_dir": "trips"}`, `{"columns": {"fare": "Fare"}}`)

	cfg, dcfg, err := loadConfigs(dir, "config.json", "dataconfig.json")
	require.NoError(t, err)

	assert.Equal(t, "trips", cfg.DataDir)
	assert.Equal(t, "*.parquet", cfg.FilePattern)
	assert.Equal(t, 0.2, cfg.Model.TestSize)
	assert.Equal(t, int64(42), cfg.Model.Seed)
	assert.Equal(t, 1.0, cfg.Sample.Proportion)
	assert.Equal(t, 7, cfg.Decompose.Period)
	assert.Equal(t, "plots", cfg.Plot.OutputDir)

	assert.Equal(t, "Fare", dcfg.GetColumn("fare"))
	assert.Equal(t, "total_amount", dcfg.GetColumn("total_amount"))
	assert.Equal(t, "unmapped", dcfg.GetColumn("unmapped"))
}

func TestLoadConfigsExplicitZero(t *testing.T) {
	dir := writeConfigs(t, `{"sample": {"proportion": 0, "seed": 7}, "model": {"seed": 0}}`, `{}`)

	cfg, _, err := loadConfigs(dir, "config.json", "dataconfig.json")
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Sample.Proportion)
	assert.Equal(t, int64(7), cfg.Sample.Seed)
	assert.Equal(t, int64(0), cfg.Model.Seed)

	dir = writeConfigs(t, `{"sample": {"seed": 7}, "model": {"test_size": 0.3}}`, `{}`)
	cfg, _, err = loadConfigs(dir, "config.json", "dataconfig.json")
	require.NoError(t, err)
	assert.Equal(t, 1.0, cfg.Sample.Proportion)
	assert.Equal(t, int64(42), cfg.Model.Seed)
}

func TestLoadConfigsErrors(t *testing.T) {
	_, _, err := loadConfigs(t.TempDir(), "config.json", "dataconfig.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	dir := writeConfigs(t, `{"data_dir": `, `{"columns": 1}`)
	_, _, err = loadConfigs(dir, "config.json", "dataconfig.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "配置加载遇到多个错误")

	dir = writeConfigs(t, `{"refresh_interval": "soon"}`, `{}`)
	_, _, err = loadConfigs(dir, "config.json", "dataconfig.json")
	assert.Error(t, err)
}

func TestDataConfigSetColumn(t *testing.T) {
	dc := NewDataConfig()
	dc.SetColumn("fare", "FareAmount")
	assert.Equal(t, "FareAmount", dc.GetColumn("fare"))

	empty := &DataConfig{}
	empty.SetColumn("a", "b")
	assert.Equal(t, "b", empty.GetColumn("a"))
}
