package fleet

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"

	"buildwarden/internal/api"
	"buildwarden/pkg/logging"
)

const subsystem = "AgentFleetReconciler"

// Result describes one fleet pass.
type Result struct {
	// Distributions holds, per peer, the address and secrets its agents need.
	Distributions map[string]api.PeerDistribution

	// Registered lists the agents that were newly registered this pass.
	Registered []string

	// Deregistered lists the extra agents removed this pass.
	Deregistered []string

	// RemovalErrors aggregates best-effort deregistration failures. They never
	// fail the pass.
	RemovalErrors error
}

// Reconciler converges the set of registered agent nodes on the remote
// workload with the desired fleet.
type Reconciler struct {
	client  api.RemoteWorkloadClient
	address string
}

// NewReconciler returns a fleet reconciler using client for one pass.
// address is handed to peers as the URL their agents connect to.
func NewReconciler(client api.RemoteWorkloadClient, address string) *Reconciler {
	return &Reconciler{client: client, address: address}
}

// Reconcile runs one fleet pass.
//
// Missing agents are registered and their secrets fetched; any failure there
// aborts the pass immediately. Registered agents that nobody wants any more
// are deregistered best-effort: failures are logged and aggregated in the
// result. Finally every desired agent's secret is collected per peer.
func (r *Reconciler) Reconcile(ctx context.Context, desired map[string][]api.AgentSpec) (*Result, error) {
	log := logging.FromContext(ctx, subsystem)
	result := &Result{Distributions: make(map[string]api.PeerDistribution, len(desired))}

	desiredNames := DesiredNames(desired)

	observed, err := r.client.ListRegisteredNodeNames(ctx)
	if err != nil {
		return result, api.NewRemoteAPIError("list-nodes", err)
	}
	registered := lo.SliceToMap(observed, func(name string) (string, bool) { return name, true })
	log.Debug("Desired %d agents, %d registered", len(desiredNames), len(observed))

	peers := sortedPeers(desired)
	secrets := make(map[string]string)

	for _, peer := range peers {
		for _, spec := range desired[peer] {
			if registered[spec.Name] {
				continue
			}
			if err := r.register(ctx, spec); err != nil {
				return result, err
			}
			registered[spec.Name] = true
			result.Registered = append(result.Registered, spec.Name)

			secret, err := r.client.NodeSecret(ctx, spec.Name)
			if err != nil {
				return result, api.NewRemoteAPIError("node-secret", err, spec.Name)
			}
			secrets[spec.Name] = secret
			log.Info("Registered agent %s for %s", spec.Name, peer)
		}
	}

	var removalErrs *multierror.Error
	for _, name := range lo.Without(observed, desiredNames...) {
		outcome, err := r.client.DeregisterNode(ctx, name)
		switch {
		case err != nil || outcome == api.OutcomeError:
			if err == nil {
				err = fmt.Errorf("unexpected outcome %s", outcome)
			}
			apiErr := api.NewRemoteAPIError("deregister-node", err, name)
			log.Error(apiErr, "Failed to deregister agent %s, continuing", name)
			removalErrs = multierror.Append(removalErrs, apiErr)
		case outcome == api.OutcomeNotFound:
			log.Info("Agent %s was already deregistered", name)
			result.Deregistered = append(result.Deregistered, name)
		default:
			log.Info("Deregistered agent %s", name)
			result.Deregistered = append(result.Deregistered, name)
		}
	}
	result.RemovalErrors = removalErrs.ErrorOrNil()

	for _, peer := range peers {
		dist := api.PeerDistribution{Address: r.address, Secrets: make(map[string]string, len(desired[peer]))}
		for _, spec := range desired[peer] {
			secret, ok := secrets[spec.Name]
			if !ok {
				secret, err = r.client.NodeSecret(ctx, spec.Name)
				if err != nil {
					return result, api.NewRemoteAPIError("node-secret", err, spec.Name)
				}
				secrets[spec.Name] = secret
			}
			dist.Secrets[spec.Name] = secret
		}
		result.Distributions[peer] = dist
	}

	log.Info("Fleet pass complete: %d registered, %d deregistered, %d removal failures",
		len(result.Registered), len(result.Deregistered), len(multierrorErrors(removalErrs)))
	return result, nil
}

func (r *Reconciler) register(ctx context.Context, spec api.AgentSpec) error {
	outcome, err := r.client.RegisterNode(ctx, spec)
	if err != nil {
		return api.NewRemoteAPIError("register-node", err, spec.Name)
	}
	switch outcome {
	case api.OutcomeOK, api.OutcomeAlreadyExists:
		return nil
	default:
		return api.NewRemoteAPIError("register-node", fmt.Errorf("unexpected outcome %s", outcome), spec.Name)
	}
}

func sortedPeers(desired map[string][]api.AgentSpec) []string {
	peers := make([]string, 0, len(desired))
	for peer := range desired {
		peers = append(peers, peer)
	}
	sort.Strings(peers)
	return peers
}

func multierrorErrors(err *multierror.Error) []error {
	if err == nil {
		return nil
	}
	return err.Errors
}
