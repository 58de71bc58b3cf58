package types

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON 不透明的结构化负载，核心逻辑只透传不解析
type JSON json.RawMessage

// EmptyObject 返回 {}
func EmptyObject() JSON {
	return JSON("{}")
}

// MustJSON 序列化任意值，失败时 panic，仅用于常量负载
func MustJSON(v interface{}) JSON {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal json: %v", err))
	}
	return JSON(data)
}

// NewJSON 序列化任意值
func NewJSON(v interface{}) (JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return JSON(data), nil
}

// IsEmpty 是否为空负载
func (j JSON) IsEmpty() bool {
	trimmed := bytes.TrimSpace(j)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Decode 反序列化到 v
func (j JSON) Decode(v interface{}) error {
	if j.IsEmpty() {
		return nil
	}
	return json.Unmarshal(j, v)
}

// MarshalJSON 实现 json.Marshaler
func (j JSON) MarshalJSON() ([]byte, error) {
	if j.IsEmpty() {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON 实现 json.Unmarshaler
func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return fmt.Errorf("types.JSON: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[:0], data...)
	return nil
}

// Value 实现 driver.Valuer，以文本形式存储
func (j JSON) Value() (driver.Value, error) {
	if j.IsEmpty() {
		return nil, nil
	}
	if !json.Valid(j) {
		return nil, fmt.Errorf("invalid json payload")
	}
	return string(j), nil
}

// Scan 实现 sql.Scanner
func (j *JSON) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("unsupported json column type %T", value)
	}
	return nil
}

// String 返回文本形式
func (j JSON) String() string {
	if j.IsEmpty() {
		return "null"
	}
	return string(j)
}
