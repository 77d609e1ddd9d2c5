// Command webfront serves the localized audition marketplace pages.
package main

import (
	"context"
	"flag"

	"github.com/pitabwire/util"

	"github.com/tjddyd55-crypto/global-audition"
	"github.com/tjddyd55-crypto/global-audition/config"
	"github.com/tjddyd55-crypto/global-audition/web"
)

func main() {
	address := flag.String("addr", "", "listen address, defaults to HTTP_PORT")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		util.Log(ctx).WithError(err).Fatal("could not load configuration")
	}

	ctx, svc := audition.NewServiceWithContext(ctx, "webfront", audition.WithConfig(cfg))
	if err = svc.Err(); err != nil {
		svc.Log(ctx).WithError(err).Fatal("could not start service")
	}
	svc.Init(ctx, audition.WithHTTPHandler(web.NewHandler(svc)))

	svc.Log(ctx).WithField("api", cfg.APIBaseURL()).WithField("locales", cfg.Locales()).Info("webfront starting")
	if err = svc.Run(ctx, *address); err != nil {
		svc.Log(ctx).WithError(err).Fatal("webfront stopped")
	}
}
