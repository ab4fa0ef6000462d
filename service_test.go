package petwalk

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter interface {
	Greet() string
}

type englishGreeter struct{ name string }

func (g *englishGreeter) Greet() string { return "hello " + g.name }

func TestServiceRegistry_RegisterAndGet(t *testing.T) {
	registry := NewServiceRegistry()
	svc := &englishGreeter{name: "rex"}

	require.NoError(t, registry.Register("greeter", svc))

	t.Run("interface target", func(t *testing.T) {
		var g greeter
		require.NoError(t, registry.Get("greeter", &g))
		assert.Equal(t, "hello rex", g.Greet())
	})

	t.Run("pointer target", func(t *testing.T) {
		var g *englishGreeter
		require.NoError(t, registry.Get("greeter", &g))
		assert.Same(t, svc, g)
	})

	t.Run("value target", func(t *testing.T) {
		var g englishGreeter
		require.NoError(t, registry.Get("greeter", &g))
		assert.Equal(t, "rex", g.name)
	})

	t.Run("incompatible target", func(t *testing.T) {
		var s string
		assert.ErrorIs(t, registry.Get("greeter", &s), ErrServiceIncompatible)
	})

	t.Run("non pointer target", func(t *testing.T) {
		var g greeter
		assert.ErrorIs(t, registry.Get("greeter", g), ErrTargetNotPointer)
	})

	t.Run("missing", func(t *testing.T) {
		var g greeter
		assert.ErrorIs(t, registry.Get("nope", &g), ErrServiceNotFound)
	})
}

func TestServiceRegistry_SingleAssignment(t *testing.T) {
	registry := NewServiceRegistry()

	require.NoError(t, registry.Register("a", 1))
	assert.ErrorIs(t, registry.Register("a", 2), ErrServiceAlreadyRegistered)
	assert.ErrorIs(t, registry.Register("b", nil), ErrServiceNil)

	v, ok := registry.Lookup("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestServiceRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewServiceRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = registry.Register(fmt.Sprintf("svc-%02d", i), i)
		}(i)
		go func() {
			defer wg.Done()
			_ = registry.Names()
		}()
	}
	wg.Wait()

	names := registry.Names()
	assert.Len(t, names, 50)
	assert.Equal(t, "svc-00", names[0])
	assert.Equal(t, "svc-49", names[49])
}

func TestGetServiceGeneric(t *testing.T) {
	app := NewApp(nil, nil)
	require.NoError(t, app.RegisterService("greeter", &englishGreeter{name: "fido"}))

	g, err := GetService[greeter](app, "greeter")
	require.NoError(t, err)
	assert.Equal(t, "hello fido", g.Greet())

	_, err = GetService[greeter](app, "missing")
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestCheckServiceCompatibility(t *testing.T) {
	greeterType := reflect.TypeOf((*greeter)(nil)).Elem()

	assert.NoError(t, checkServiceCompatibility(&englishGreeter{}, ServiceDependency{Name: "g", SatisfiesInterface: greeterType}))
	assert.NoError(t, checkServiceCompatibility("anything", ServiceDependency{Name: "g"}))
	assert.ErrorIs(t, checkServiceCompatibility("text", ServiceDependency{Name: "g", SatisfiesInterface: greeterType}), ErrServiceWrongInterface)
	assert.ErrorIs(t, checkServiceCompatibility(nil, ServiceDependency{Name: "g"}), ErrServiceNil)
}
