package publish

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"buildwarden/internal/api"
)

const namespace = "ci"

func newFakeClient(t *testing.T, objs ...client.Object) client.Client {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, corev1.AddToScheme(scheme))
	return fake.NewClientBuilder().WithScheme(scheme).WithObjects(objs...).Build()
}

func getSecret(t *testing.T, c client.Client, name string) *corev1.Secret {
	t.Helper()
	secret := &corev1.Secret{}
	require.NoError(t, c.Get(context.Background(), client.ObjectKey{Namespace: namespace, Name: name}, secret))
	return secret
}

func TestSecretName(t *testing.T) {
	p := NewSecretPublisher(nil, namespace, "buildwarden-agent")

	tests := []struct {
		peer string
		want string
	}{
		{peer: "agent-0", want: "buildwarden-agent-agent-0"},
		{peer: "agent/0", want: "buildwarden-agent-agent-0-93ee205f"},
		{peer: "Host.Example.com", want: "buildwarden-agent-host-example-com-e971c5ec"},
		{peer: "///", want: "buildwarden-agent-peer-732c4e97"},
	}
	for _, tt := range tests {
		t.Run(tt.peer, func(t *testing.T) {
			assert.Equal(t, tt.want, p.SecretName(tt.peer))
		})
	}
}

func TestSecretName_LongPeerKeepsHash(t *testing.T) {
	p := NewSecretPublisher(nil, namespace, "buildwarden-agent")
	a := p.SecretName(strings.Repeat("x", 300) + "/a")
	b := p.SecretName(strings.Repeat("x", 300) + "/b")

	assert.LessOrEqual(t, len(a), maxNameLength)
	assert.NotEqual(t, a, b)
}

func TestSecretPublisher_CreatesSecrets(t *testing.T) {
	c := newFakeClient(t)
	p := NewSecretPublisher(c, namespace, "buildwarden-agent")

	err := p.Publish(context.Background(), map[string]api.PeerDistribution{
		"agent/0": {Address: "http://jenkins:8080", Secrets: map[string]string{"w1": "s1", "w2": "s2"}},
		"agent/1": {Address: "http://jenkins:8080", Secrets: map[string]string{}},
	})
	require.NoError(t, err)

	secret := getSecret(t, c, p.SecretName("agent/0"))
	assert.Equal(t, "http://jenkins:8080", string(secret.Data[AddressKey]))
	assert.Equal(t, "s1", string(secret.Data[AgentKey("w1")]))
	assert.Equal(t, "s2", string(secret.Data[AgentKey("w2")]))
	assert.Equal(t, "buildwarden", secret.Labels[LabelManagedBy])
	assert.Equal(t, "agent-0", secret.Labels[LabelPeer])
	assert.Equal(t, "agent/0", secret.Annotations[AnnotationPeer])

	empty := getSecret(t, c, p.SecretName("agent/1"))
	assert.Len(t, empty.Data, 1)
}

func TestSecretPublisher_AgentNamedAddress(t *testing.T) {
	c := newFakeClient(t)
	p := NewSecretPublisher(c, namespace, "buildwarden-agent")

	require.NoError(t, p.Publish(context.Background(), map[string]api.PeerDistribution{
		"agent/0": {Address: "http://jenkins:8080", Secrets: map[string]string{"address": "agent-secret"}},
	}))

	secret := getSecret(t, c, p.SecretName("agent/0"))
	assert.Equal(t, "http://jenkins:8080", string(secret.Data[AddressKey]))
	assert.Equal(t, "agent-secret", string(secret.Data[AgentKey("address")]))
}

func TestSecretPublisher_SkipsAgentsWithInvalidKeys(t *testing.T) {
	c := newFakeClient(t)
	p := NewSecretPublisher(c, namespace, "buildwarden-agent")

	require.NoError(t, p.Publish(context.Background(), map[string]api.PeerDistribution{
		"agent/0": {Address: "http://jenkins:8080", Secrets: map[string]string{"my agent": "s1", "w2": "s2"}},
	}))

	secret := getSecret(t, c, p.SecretName("agent/0"))
	assert.Equal(t, map[string][]byte{
		AddressKey:     []byte("http://jenkins:8080"),
		AgentKey("w2"): []byte("s2"),
	}, secret.Data)
}

func TestSecretPublisher_CollidingPeersStayApart(t *testing.T) {
	c := newFakeClient(t)
	p := NewSecretPublisher(c, namespace, "buildwarden-agent")

	require.NoError(t, p.Publish(context.Background(), map[string]api.PeerDistribution{
		"agent/0": {Address: "http://jenkins:8080", Secrets: map[string]string{"w1": "s1"}},
		"agent-0": {Address: "http://jenkins:8080", Secrets: map[string]string{"w2": "s2"}},
	}))

	first := getSecret(t, c, p.SecretName("agent/0"))
	second := getSecret(t, c, p.SecretName("agent-0"))
	assert.NotEqual(t, first.Name, second.Name)
	assert.Equal(t, "s1", string(first.Data[AgentKey("w1")]))
	assert.NotContains(t, first.Data, AgentKey("w2"))
	assert.Equal(t, "agent/0", first.Annotations[AnnotationPeer])
	assert.Equal(t, "s2", string(second.Data[AgentKey("w2")]))
	assert.Equal(t, "agent-0", second.Annotations[AnnotationPeer])

	list := &corev1.SecretList{}
	require.NoError(t, c.List(context.Background(), list, client.InNamespace(namespace)))
	assert.Len(t, list.Items, 2, "neither peer's Secret is pruned")
}

func TestSecretPublisher_UpdatesExistingSecret(t *testing.T) {
	existing := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "buildwarden-agent-agent-0",
			Namespace: namespace,
			Labels:    map[string]string{"team": "ci"},
		},
		Data: map[string][]byte{AddressKey: []byte("http://old:8080"), AgentKey("gone"): []byte("x")},
	}
	c := newFakeClient(t, existing)
	p := NewSecretPublisher(c, namespace, "buildwarden-agent")

	require.NoError(t, p.Publish(context.Background(), map[string]api.PeerDistribution{
		"agent-0": {Address: "http://jenkins:8080", Secrets: map[string]string{"w1": "s1"}},
	}))

	secret := getSecret(t, c, "buildwarden-agent-agent-0")
	assert.Equal(t, map[string][]byte{AddressKey: []byte("http://jenkins:8080"), AgentKey("w1"): []byte("s1")}, secret.Data)
	assert.Equal(t, "ci", secret.Labels["team"], "foreign labels are preserved")
	assert.Equal(t, "buildwarden", secret.Labels[LabelManagedBy])
}

func TestSecretPublisher_PrunesDepartedPeers(t *testing.T) {
	managed := func(name string) *corev1.Secret {
		return &corev1.Secret{ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{LabelManagedBy: "buildwarden"},
		}}
	}
	unmanaged := &corev1.Secret{ObjectMeta: metav1.ObjectMeta{Name: "buildwarden-agent-manual", Namespace: namespace}}
	c := newFakeClient(t, managed("buildwarden-agent-agent-9"), managed("other-prefix-agent-9"), unmanaged)
	p := NewSecretPublisher(c, namespace, "buildwarden-agent")

	require.NoError(t, p.Publish(context.Background(), map[string]api.PeerDistribution{
		"agent-0": {Address: "http://jenkins:8080"},
	}))

	list := &corev1.SecretList{}
	require.NoError(t, c.List(context.Background(), list, client.InNamespace(namespace)))
	names := make([]string, 0, len(list.Items))
	for _, s := range list.Items {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"buildwarden-agent-agent-0", "other-prefix-agent-9", "buildwarden-agent-manual"}, names)
}

func TestTablePrinter_HidesSecrets(t *testing.T) {
	var buf bytes.Buffer
	err := TablePrinter{Out: &buf}.Publish(context.Background(), map[string]api.PeerDistribution{
		"agent/1": {Address: "http://jenkins:8080"},
		"agent/0": {Address: "http://jenkins:8080", Secrets: map[string]string{"w2": "topsecret", "w1": "hunter2"}},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "AGENTS")
	assert.Contains(t, out, "w1, w2")
	assert.Contains(t, out, "2 (hidden)")
	assert.NotContains(t, out, "topsecret")
	assert.NotContains(t, out, "hunter2")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("agent/0")), bytes.Index(buf.Bytes(), []byte("agent/1")))
}

func TestTablePrinter_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TablePrinter{Out: &buf}.Publish(context.Background(), nil))
	assert.Contains(t, buf.String(), "PEER")
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard{}.Publish(context.Background(), map[string]api.PeerDistribution{"p": {}}))
}
