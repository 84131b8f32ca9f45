package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/perpbot/goperp/pkg/logger"
)

// Service 持久化服务接口
type Service interface {
	NewStore(prefix, id, tag string) Store
}

// Store 存储接口
type Store interface {
	Save(data interface{}) error
	Load(data interface{}) error
}

// ErrNotExists 表示数据不存在
var ErrNotExists = fmt.Errorf("persistence data not exists")

// JSONFileService 基于 JSON 文件的持久化服务。
// 风控状态等需要跨重启存活的小状态走这里，写入是原子的（tmp + rename）。
type JSONFileService struct {
	baseDir string
}

// NewJSONFileService 创建 JSON 文件持久化服务
func NewJSONFileService(baseDir string) *JSONFileService {
	return &JSONFileService{
		baseDir: baseDir,
	}
}

// NewStore 创建新的存储
func (s *JSONFileService) NewStore(prefix, id, tag string) Store {
	key := fmt.Sprintf("%s:%s:%s", prefix, id, tag)
	return &JSONFileStore{
		service: s,
		key:     key,
	}
}

// JSONFileStore JSON 文件存储实现
type JSONFileStore struct {
	service *JSONFileService
	key     string
}

var keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func (s *JSONFileStore) filePath() string {
	// key 形如 "state:<id>:<tag>"，这里做文件名安全化
	safe := keySanitizer.ReplaceAllString(s.key, "_")
	return filepath.Join(s.service.baseDir, safe+".json")
}

// Save 保存数据
func (s *JSONFileStore) Save(data interface{}) error {
	logger.Debugf("[persistence] Save: key=%s", s.key)
	if err := os.MkdirAll(s.service.baseDir, 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	path := s.filePath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load 加载数据
func (s *JSONFileStore) Load(data interface{}) error {
	logger.Debugf("[persistence] Load: key=%s", s.key)
	path := s.filePath()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return err
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	return json.Unmarshal(b, data)
}
