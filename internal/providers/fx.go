package providers

import (
	"github.com/smallbiznis/meterbill/internal/providers/email"
	"github.com/smallbiznis/meterbill/internal/providers/pdf"
	"github.com/smallbiznis/meterbill/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
	slack.Module,
)
