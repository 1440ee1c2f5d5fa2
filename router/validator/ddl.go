package validator

import (
	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/stmtctx"
)

type ddlValidator struct {
	nopValidator
}

func (ddlValidator) PreValidate(snap *rule.Snapshot, stmt *stmtctx.Context, _ []any, _ config.Props) error {
	if stmt.DDL == nil {
		return nil
	}
	names := stmt.TableNames()
	sharded := snap.ShardingTables(names)
	if len(sharded) == 0 {
		return nil
	}
	switch stmt.DDL.Kind {
	case stmtctx.DDLRenameTable:
		return unsupported("rename of sharding table %s", sharded[0])
	case stmtctx.DDLCreateTable, stmtctx.DDLDropTable:
		if len(names) > 1 {
			return unsupported("%d tables in one statement with sharding table %s", len(names), sharded[0])
		}
	}
	return nil
}
