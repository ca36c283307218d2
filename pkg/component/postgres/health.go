package postgres

import (
	"context"
	"errors"
	"fmt"

	options "github.com/kart-io/docqa/pkg/options/postgres"
)

// ErrVectorExtensionMissing 表示数据库未安装 pgvector，分块检索无法执行。
var ErrVectorExtensionMissing = errors.New("pgvector extension is not installed")

// CheckHealth 检查连接可用，postgres 上同时要求 pgvector 扩展已安装。
func (c *Client) CheckHealth(ctx context.Context) error {
	if err := c.Ping(ctx); err != nil {
		return err
	}
	if c.opts.Driver == options.DriverSQLite {
		return nil
	}

	var installed int64
	err := c.db.WithContext(ctx).
		Raw("SELECT count(*) FROM pg_extension WHERE extname = ?", "vector").
		Scan(&installed).Error
	if err != nil {
		return fmt.Errorf("check pgvector extension: %w", err)
	}
	if installed == 0 {
		return ErrVectorExtensionMissing
	}
	return nil
}
