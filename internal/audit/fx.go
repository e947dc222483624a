package audit

import (
	"github.com/smallbiznis/upkeep/internal/audit/repository"
	"github.com/smallbiznis/upkeep/internal/audit/service"
	"go.uber.org/fx"
)

// Module provides the append-only audit trail used by admin handlers and
// the due-check job.
var Module = fx.Module("audit",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
