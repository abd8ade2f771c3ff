// Package pubsub opens the Pub/Sub v2 client and hands out the orders topic
// publisher and the analytics subscriber with YCSYH's flow-control settings.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chryzcode/ycsyh-site/pkg/config"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub orders topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

type Client struct {
	ps      *pubsub.Client
	project string
	cfg     config.PubSubConfig
}

// NewClient opens the client without touching any resource. Processes check
// the topic or subscription they need themselves.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	switch {
	case project == "":
		return nil, errProjectIDRequired
	case strings.TrimSpace(cfg.OrdersTopic) == "":
		return nil, errTopicRequired
	}
	ps, err := pubsub.NewClient(ctx, project, ClientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("open pubsub: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "project_id", project), "pubsub.ready")
	}
	return &Client{ps: ps, project: project, cfg: cfg}, nil
}

// ClientOptions prefers inline credentials over a key file. With neither,
// application default credentials apply.
func ClientOptions(gcp config.GCPConfig) []option.ClientOption {
	if js := strings.TrimSpace(gcp.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// EnsureOrdersSubscription fails when the analytics subscription is missing.
func (c *Client) EnsureOrdersSubscription(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errNotInitialized
	}
	name := strings.TrimSpace(c.cfg.OrdersSubscription)
	if name == "" {
		return errors.New("pubsub orders subscription is required")
	}
	_, err := c.ps.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
		Subscription: SubscriptionResourceName(c.project, name),
	})
	return lookupErr("subscription", name, err)
}

// Ping checks the orders topic exists. Used by readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errNotInitialized
	}
	name := strings.TrimSpace(c.cfg.OrdersTopic)
	_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
		Topic: TopicResourceName(c.project, name),
	})
	return lookupErr("topic", name, err)
}

func lookupErr(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub %s %q does not exist", kind, name)
	default:
		return fmt.Errorf("look up pubsub %s %q: %w", kind, name, err)
	}
}

// Subscription returns a subscriber with the configured flow control.
// name may be a bare ID or a full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.ps == nil {
		return nil
	}
	full := SubscriptionResourceName(c.project, name)
	if full == "" {
		return nil
	}
	sub := c.ps.Subscriber(full)
	if c.cfg.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.MaxOutstanding
	}
	return sub
}

func (c *Client) OrdersSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(c.cfg.OrdersSubscription)
}

// Publisher returns a batching publisher for a topic ID or resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	full := TopicResourceName(c.project, name)
	if full == "" {
		return nil
	}
	pub := c.ps.Publisher(full)
	if c.cfg.PublishDelay > 0 {
		pub.PublishSettings.DelayThreshold = c.cfg.PublishDelay
	}
	return pub
}

func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	return c.ps.Close()
}

// SubscriptionResourceName expands a bare ID to projects/<p>/subscriptions/<id>.
func SubscriptionResourceName(project, name string) string {
	return resourceName(project, "subscriptions", name)
}

// TopicResourceName expands a bare ID to projects/<p>/topics/<id>.
func TopicResourceName(project, name string) string {
	return resourceName(project, "topics", name)
}

func resourceName(project, kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	project = strings.TrimSpace(project)
	if project == "" {
		return ""
	}
	return "projects/" + project + "/" + kind + "/" + name
}
