package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/ini.v1"
	"liuproxy_prober/internal/shared/types"
)

// LoadIni 加载 prober.ini 行为配置文件。缺失的键保留 cfg 中已有的默认值。
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}
	applyEnv(cfg)
	return nil
}

// LoadIniBytes is LoadIni for in-memory sources.
func LoadIniBytes(cfg *types.Config, data []byte) error {
	iniFile, err := ini.Load(data)
	if err != nil {
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}
	applyEnv(cfg)
	return nil
}

func applyEnv(cfg *types.Config) {
	overrideFromEnvString(&cfg.CoreConf.Authorization, "HTTP_META_AUTHORIZATION")
	overrideFromEnvString(&cfg.CoreConf.Host, "HTTP_META_HOST")
	overrideFromEnvInt(&cfg.CoreConf.Port, "HTTP_META_PORT")
	overrideFromEnvInt(&cfg.ProbeConf.Concurrency, "PROBER_CONCURRENCY")
}

// LoadNodes 加载节点列表 JSON 文件。
func LoadNodes(fileName string) ([]*types.ProxyNode, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read nodes file: %w", err)
	}

	var nodes []*types.ProxyNode
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes file: %w", err)
	}
	return nodes, nil
}

// SaveNodes 将带注解的节点列表写回 JSON 文件。
func SaveNodes(fileName string, nodes []*types.ProxyNode) error {
	data, err := json.MarshalIndent(nodes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}
	return os.WriteFile(fileName, data, 0644)
}

// WriteNodes writes the node list as indented JSON to w.
func WriteNodes(w io.Writer, nodes []*types.ProxyNode) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(nodes)
}

func overrideFromEnvString(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}
