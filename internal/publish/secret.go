package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/validation"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/util/retry"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"buildwarden/internal/api"
	"buildwarden/pkg/logging"
)

const (
	subsystem = "SecretPublisher"

	// LabelManagedBy marks Secrets owned by the publisher.
	LabelManagedBy = "app.kubernetes.io/managed-by"
	managerName    = "buildwarden"

	// LabelPeer holds the sanitized peer identity.
	LabelPeer = "buildwarden.io/peer"

	// AnnotationPeer holds the raw peer identity.
	AnnotationPeer = "buildwarden.io/peer"

	// AddressKey is the Secret data key holding the distribution address.
	AddressKey = "address"

	// AgentKeyPrefix prefixes the data key of each agent secret, keeping
	// agent names apart from AddressKey.
	AgentKeyPrefix = "agent."

	hashLength = 8

	maxNameLength  = 253
	maxLabelLength = 63
)

var invalidNameChars = regexp.MustCompile(`[^a-z0-9-]+`)

// SecretPublisher upserts one Secret per peer holding the distribution
// address under AddressKey and each agent secret under AgentKey(name). Agents
// whose key would not be a valid Secret data key are logged and left out.
// Managed Secrets of peers that are no longer present are deleted.
type SecretPublisher struct {
	client    client.Client
	namespace string
	prefix    string
}

// NewSecretPublisher returns a publisher writing into namespace.
func NewSecretPublisher(c client.Client, namespace, prefix string) *SecretPublisher {
	return &SecretPublisher{client: c, namespace: namespace, prefix: prefix}
}

// NewKubernetesClient builds a controller-runtime client from the ambient
// kubeconfig or in-cluster configuration.
func NewKubernetesClient() (client.Client, error) {
	cfg, err := ctrl.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load Kubernetes configuration: %w", err)
	}
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))

	c, err := client.New(cfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	return c, nil
}

// SecretName returns the Secret name used for peer. When the peer identity
// is not already a valid name fragment, a short hash of it is appended so that
// identities sanitizing to the same fragment ("agent/0", "agent-0") stay apart.
func (p *SecretPublisher) SecretName(peer string) string {
	fragment := sanitize(peer)
	if fragment == peer {
		return truncate(p.prefix+"-"+fragment, maxNameLength)
	}
	sum := sha256.Sum256([]byte(peer))
	suffix := "-" + hex.EncodeToString(sum[:])[:hashLength]
	return truncate(p.prefix+"-"+fragment, maxNameLength-len(suffix)) + suffix
}

// AgentKey returns the Secret data key holding the secret of agent.
func AgentKey(agent string) string {
	return AgentKeyPrefix + agent
}

// Publish implements Publisher.
func (p *SecretPublisher) Publish(ctx context.Context, distributions map[string]api.PeerDistribution) error {
	keep := make(map[string]bool, len(distributions))
	for _, peer := range sortedPeers(distributions) {
		name := p.SecretName(peer)
		keep[name] = true
		if err := p.upsert(ctx, name, peer, distributions[peer]); err != nil {
			return fmt.Errorf("failed to publish agent secrets for peer %s: %w", peer, err)
		}
	}
	return p.prune(ctx, keep)
}

func (p *SecretPublisher) upsert(ctx context.Context, name, peer string, dist api.PeerDistribution) error {
	data := map[string][]byte{AddressKey: []byte(dist.Address)}
	for agent, secret := range dist.Secrets {
		key := AgentKey(agent)
		if errs := validation.IsConfigMapKey(key); len(errs) > 0 {
			logging.Warn(subsystem, "Not publishing secret of agent %q for peer %s: %s",
				agent, peer, strings.Join(errs, "; "))
			continue
		}
		data[key] = []byte(secret)
	}

	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		secret := &corev1.Secret{}
		err := p.client.Get(ctx, client.ObjectKey{Namespace: p.namespace, Name: name}, secret)
		if apierrors.IsNotFound(err) {
			secret = &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{
					Name:        name,
					Namespace:   p.namespace,
					Labels:      p.labels(peer),
					Annotations: map[string]string{AnnotationPeer: peer},
				},
				Type: corev1.SecretTypeOpaque,
				Data: data,
			}
			if err := p.client.Create(ctx, secret); err != nil {
				return err
			}
			logging.Info(subsystem, "Created Secret %s/%s for peer %s", p.namespace, name, peer)
			return nil
		}
		if err != nil {
			return err
		}

		if secret.Labels == nil {
			secret.Labels = map[string]string{}
		}
		for k, v := range p.labels(peer) {
			secret.Labels[k] = v
		}
		if secret.Annotations == nil {
			secret.Annotations = map[string]string{}
		}
		secret.Annotations[AnnotationPeer] = peer
		secret.Data = data
		if err := p.client.Update(ctx, secret); err != nil {
			return err
		}
		logging.Debug(subsystem, "Updated Secret %s/%s", p.namespace, name)
		return nil
	})
}

func (p *SecretPublisher) prune(ctx context.Context, keep map[string]bool) error {
	list := &corev1.SecretList{}
	if err := p.client.List(ctx, list,
		client.InNamespace(p.namespace),
		client.MatchingLabels{LabelManagedBy: managerName},
	); err != nil {
		return fmt.Errorf("failed to list agent Secrets: %w", err)
	}

	var errs *multierror.Error
	for i := range list.Items {
		secret := &list.Items[i]
		if keep[secret.Name] || !strings.HasPrefix(secret.Name, p.prefix+"-") {
			continue
		}
		if err := p.client.Delete(ctx, secret); err != nil && !apierrors.IsNotFound(err) {
			errs = multierror.Append(errs, fmt.Errorf("delete Secret %s: %w", secret.Name, err))
			continue
		}
		logging.Info(subsystem, "Deleted Secret %s/%s of departed peer", p.namespace, secret.Name)
	}
	return errs.ErrorOrNil()
}

func (p *SecretPublisher) labels(peer string) map[string]string {
	return map[string]string{
		LabelManagedBy: managerName,
		LabelPeer:      strings.Trim(truncate(sanitize(peer), maxLabelLength), "-"),
	}
}

// sanitize maps a peer identity such as "agent/0" to a DNS-1123 fragment.
func sanitize(s string) string {
	s = invalidNameChars.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "peer"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimRight(s[:n], "-")
}
