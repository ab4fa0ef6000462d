package petwalk

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ServiceRegistry is the service locator owned by an App.
// It is safe for concurrent use; modules resolve services from Init and
// from background goroutines alike.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
}

// NewServiceRegistry creates an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{services: make(map[string]any)}
}

// Register adds a service under name. Names are single-assignment.
func (r *ServiceRegistry) Register(name string, service any) error {
	if service == nil {
		return fmt.Errorf("%w: %s", ErrServiceNil, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[name]; exists {
		return fmt.Errorf("%w: %s", ErrServiceAlreadyRegistered, name)
	}
	r.services[name] = service
	return nil
}

// Lookup returns the raw service registered under name.
func (r *ServiceRegistry) Lookup(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	return svc, ok
}

// Names returns the registered service names in sorted order.
func (r *ServiceRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get assigns the service registered under name into target, which must be
// a non-nil pointer. Interface targets accept any implementing service;
// concrete targets accept assignable values or a pointer to one.
func (r *ServiceRegistry) Get(name string, target any) error {
	service, exists := r.Lookup(name)
	if !exists {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}

	targetValue := reflect.ValueOf(target)
	if targetValue.Kind() != reflect.Ptr || targetValue.IsNil() {
		return ErrTargetNotPointer
	}

	serviceType := reflect.TypeOf(service)
	targetType := targetValue.Elem().Type()

	if targetType.Kind() == reflect.Interface && serviceType.Implements(targetType) {
		targetValue.Elem().Set(reflect.ValueOf(service))
		return nil
	}

	if serviceType.AssignableTo(targetType) {
		targetValue.Elem().Set(reflect.ValueOf(service))
		return nil
	}
	if serviceType.Kind() == reflect.Ptr && serviceType.Elem().AssignableTo(targetType) {
		targetValue.Elem().Set(reflect.ValueOf(service).Elem())
		return nil
	}

	return fmt.Errorf("%w: service '%s' of type %s cannot be assigned to %s",
		ErrServiceIncompatible, name, serviceType, targetType)
}

// GetService is the typed form of ServiceRegistry.Get.
func GetService[T any](app Application, name string) (T, error) {
	var svc T
	if err := app.GetService(name, &svc); err != nil {
		return svc, err
	}
	return svc, nil
}

// checkServiceCompatibility checks if a service satisfies a dependency.
func checkServiceCompatibility(service any, dep ServiceDependency) error {
	if service == nil {
		return fmt.Errorf("%w: %s", ErrServiceNil, dep.Name)
	}
	if dep.SatisfiesInterface == nil || dep.SatisfiesInterface.Kind() != reflect.Interface {
		return nil
	}
	if reflect.TypeOf(service).Implements(dep.SatisfiesInterface) {
		return nil
	}
	return fmt.Errorf("%w: service '%s' of type %T doesn't satisfy %s",
		ErrServiceWrongInterface, dep.Name, service, dep.SatisfiesInterface)
}
