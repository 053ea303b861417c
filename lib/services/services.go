// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package services manages the lifecycle of the long running parts of
// the relayer process.
package services

import (
	"reflect"
)

// Logger logs formatted strings at the different log levels.
type Logger interface {
	Debug(s string)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Service must be implemented by all services.
type Service interface {
	Start() error
	Stop() error
}

// ServiceRegistry is a structure to manage core system services.
type ServiceRegistry struct {
	services     map[reflect.Type]Service
	serviceTypes []reflect.Type // start order, used to iterate through services
	logger       Logger
}

// NewServiceRegistry creates an empty registry.
func NewServiceRegistry(logger Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[reflect.Type]Service),
		logger:   logger,
	}
}

// RegisterService stores a new service in the map. A service type
// registered twice is ignored.
func (s *ServiceRegistry) RegisterService(service Service) {
	kind := reflect.TypeOf(service)
	if _, exists := s.services[kind]; exists {
		s.logger.Warnf("Tried to add service type %s that has already been seen", kind)
		return
	}
	s.services[kind] = service
	s.serviceTypes = append(s.serviceTypes, kind)
}

// StartAll calls `Service.Start()` for all registered services.
func (s *ServiceRegistry) StartAll() {
	s.logger.Infof("Starting services: %v", s.serviceTypes)
	for _, typ := range s.serviceTypes {
		s.logger.Debugf("Starting service %s", typ)
		err := s.services[typ].Start()
		if err != nil {
			s.logger.Errorf("Cannot start service %s: %s", typ, err)
		}
	}
	s.logger.Debug("All services started.")
}

// StopAll calls `Service.Stop()` for all registered services, in the
// reverse of the start order.
func (s *ServiceRegistry) StopAll() {
	s.logger.Infof("Stopping services: %v", s.serviceTypes)
	for i := len(s.serviceTypes) - 1; i >= 0; i-- {
		typ := s.serviceTypes[i]
		s.logger.Debugf("Stopping service %s", typ)
		err := s.services[typ].Stop()
		if err != nil {
			s.logger.Errorf("Error stopping service %s: %s", typ, err)
		}
	}
	s.logger.Debug("All services stopped.")
}

// Get returns the registered service of the same type as the given
// service pointer, or nil if there is none.
func (s *ServiceRegistry) Get(srvc interface{}) Service {
	if reflect.TypeOf(srvc).Kind() != reflect.Ptr {
		s.logger.Warnf("expected a pointer but got %T", srvc)
		return nil
	}

	kind := reflect.ValueOf(srvc).Type()
	if service, ok := s.services[kind]; ok {
		return service
	}
	s.logger.Warnf("unknown service type %T", srvc)
	return nil
}
