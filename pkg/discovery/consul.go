package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/consul/api"
)

type ConsulClient struct {
	client *api.Client
	log    *slog.Logger
}

type ServiceConfig struct {
	Name    string
	ID      string
	Address string
	Port    int
	Tags    []string
}

func NewConsulClient(addr string, log *slog.Logger) (*ConsulClient, error) {
	config := api.DefaultConfig()
	config.Address = addr

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	if _, err := client.Agent().Self(); err != nil {
		return nil, fmt.Errorf("connect to consul: %w", err)
	}
	log.Info("connected to consul", "addr", addr)
	return &ConsulClient{client: client, log: log}, nil
}

func (c *ConsulClient) Register(cfg ServiceConfig) error {
	registration := &api.AgentServiceRegistration{
		ID:      cfg.ID,
		Name:    cfg.Name,
		Port:    cfg.Port,
		Address: cfg.Address,
		Tags:    cfg.Tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", cfg.Address, cfg.Port),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}
	if err := c.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("register %s: %w", cfg.Name, err)
	}
	c.log.Info("registered service", "name", cfg.Name, "id", cfg.ID, "addr", cfg.Address, "port", cfg.Port)
	return nil
}

func (c *ConsulClient) Deregister(serviceID string) error {
	if err := c.client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("deregister %s: %w", serviceID, err)
	}
	c.log.Info("deregistered service", "id", serviceID)
	return nil
}

// ServiceURL returns the base URL of the first passing instance of name.
func (c *ConsulClient) ServiceURL(ctx context.Context, name string) (string, error) {
	services, _, err := c.client.Health().Service(name, "", true, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", name, err)
	}
	if len(services) == 0 {
		return "", fmt.Errorf("no healthy instances of %s", name)
	}
	svc := services[0].Service
	address := svc.Address
	if address == "" {
		address = services[0].Node.Address
	}
	return fmt.Sprintf("http://%s:%d", address, svc.Port), nil
}

type Lookup interface {
	ServiceURL(ctx context.Context, name string) (string, error)
}

// Resolver prefers discovery and falls back to a fixed URL when discovery is
// disabled or has no healthy instance.
type Resolver struct {
	lookup   Lookup
	name     string
	fallback string
	log      *slog.Logger
}

func NewResolver(lookup Lookup, name, fallback string, log *slog.Logger) *Resolver {
	return &Resolver{lookup: lookup, name: name, fallback: fallback, log: log}
}

func (r *Resolver) BaseURL(ctx context.Context) string {
	if r.lookup == nil {
		return r.fallback
	}
	u, err := r.lookup.ServiceURL(ctx, r.name)
	if err != nil {
		r.log.Warn("service discovery failed, using configured url", "service", r.name, "url", r.fallback, "err", err)
		return r.fallback
	}
	return u
}
