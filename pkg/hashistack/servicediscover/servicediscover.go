package servicediscover

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"smallbiznis-reward/pkg/config"

	"github.com/hashicorp/consul/api"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module registers the HTTP API in consul while the process runs. It is a
// no-op when CONSUL.ADDR is unset.
var Module = fx.Module("servicediscover", fx.Invoke(registerConsul))

type ServiceRegistry interface {
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
}

func registerConsul(lc fx.Lifecycle, cfg *config.Config) error {
	if cfg.Consul.Addr == "" {
		return nil
	}

	registry, err := NewRegistry(cfg)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := registry.Register(ctx); err != nil {
				zap.L().Error("[Consul] failed to register service", zap.Error(err))
				return err
			}
			zap.L().Info("[Consul] service registered", zap.String("addr", cfg.Consul.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return registry.Deregister(ctx)
		},
	})
	return nil
}

// NewRegistration describes the HTTP API of this process. The health check
// polls the readiness endpoint.
func NewRegistration(cfg *config.Config) (*api.AgentServiceRegistration, error) {
	_, portStr, err := net.SplitHostPort(cfg.Server.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_SERVER.ADDR %q: %w", cfg.Server.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_SERVER.ADDR port %q: %w", portStr, err)
	}

	host := cfg.Consul.ServiceHost
	return &api.AgentServiceRegistration{
		ID:      fmt.Sprintf("%s-%d", cfg.AppName, cfg.NodeID),
		Name:    cfg.AppName,
		Address: host,
		Port:    port,
		Tags:    []string{cfg.AppEnv, cfg.AppVersion},
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s/readyz", net.JoinHostPort(host, portStr)),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}, nil
}

var _ ServiceRegistry = (*ConsulRegistry)(nil)

type ConsulRegistry struct {
	client  *api.Client
	service *api.AgentServiceRegistration
}

func NewRegistry(cfg *config.Config) (*ConsulRegistry, error) {
	service, err := NewRegistration(cfg)
	if err != nil {
		return nil, err
	}

	c := api.DefaultConfig()
	c.Address = cfg.Consul.Addr

	client, err := api.NewClient(c)
	if err != nil {
		return nil, err
	}

	return &ConsulRegistry{client: client, service: service}, nil
}

func (r *ConsulRegistry) Register(ctx context.Context) error {
	return r.client.Agent().ServiceRegister(r.service)
}

func (r *ConsulRegistry) Deregister(ctx context.Context) error {
	return r.client.Agent().ServiceDeregister(r.service.ID)
}
