package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/tipy/internal/app/api/server"
	"github.com/fatflowers/tipy/internal/app/service/admin"
	"github.com/fatflowers/tipy/internal/app/service/earnings"
	"github.com/fatflowers/tipy/internal/app/service/reconciliation"
	"github.com/fatflowers/tipy/internal/app/service/suggestion"
	"github.com/fatflowers/tipy/internal/app/service/withdrawal"
	"github.com/fatflowers/tipy/internal/platform/db"
	"github.com/fatflowers/tipy/internal/platform/mercadopago"
	"github.com/fatflowers/tipy/pkg/config"
	"github.com/fatflowers/tipy/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	mercadopago.Module,
	reconciliation.Module,
	suggestion.Module,
	withdrawal.Module,
	earnings.Module,
	admin.Module,
	server.Module,
)
