package admin

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lysShub/fragtun/tunnel"
	"github.com/lysShub/netkit/errorx"
	"github.com/pkg/errors"
)

type StatsSource interface {
	Stats() tunnel.Stats
	FragNextID() uint16
}

// Control http admin server, expose tunnel statistics
type Control struct {
	logger *slog.Logger
	src    StatsSource

	l   net.Listener
	srv *http.Server

	closeErr errorx.CloseErr
}

func New(addr string, src StatsSource, logger *slog.Logger) (*Control, error) {
	if src == nil {
		return nil, errors.New("require stats source")
	}
	if logger == nil {
		logger = slog.Default()
	}
	var c = &Control{logger: logger, src: src}

	var err error
	c.l, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	c.srv = &http.Server{Handler: c.Handler()}
	return c, nil
}

func (c *Control) close(cause error) error {
	return c.closeErr.Close(func() (errs []error) {
		errs = append(errs, cause)
		if c.srv != nil {
			errs = append(errs, errors.WithStack(c.srv.Close()))
		}
		return errs
	})
}

func (c *Control) Close() error { return c.close(nil) }

func (c *Control) Addr() net.Addr { return c.l.Addr() }

func (c *Control) Serve() error {
	c.logger.Info("admin start", slog.String("listen", c.l.Addr().String()))

	err := c.srv.Serve(c.l)
	if errors.Is(err, http.ErrServerClosed) {
		return c.close(nil)
	}
	return c.close(err)
}

func (c *Control) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ping", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	r.GET("/stats", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"stats":        c.src.Stats(),
			"frag_next_id": c.src.FragNextID(),
		})
	})
	return r
}
