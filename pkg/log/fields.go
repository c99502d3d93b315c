package log

import (
	"go.uber.org/zap"
)

const FieldNameModule = "module"

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}
