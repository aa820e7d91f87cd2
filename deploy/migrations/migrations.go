package migrations

import "embed"

// Files 暴露验证回执账本的 SQL 迁移文件。
//
//go:embed *.sql
var Files embed.FS
