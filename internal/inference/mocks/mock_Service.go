// Package mocks provides test doubles for the inference service.
package mocks

import (
	"context"

	inference "github.com/belivan/MaxantAgency-sub002/internal/inference"
	mock "github.com/stretchr/testify/mock"
)

// MockService is a mock type for the Service interface.
type MockService struct {
	mock.Mock
}

// Invoke provides a mock function with given fields: ctx, req
func (_m *MockService) Invoke(ctx context.Context, req inference.Request) (*inference.Response, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Invoke")
	}

	var r0 *inference.Response
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, inference.Request) (*inference.Response, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, inference.Request) *inference.Response); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*inference.Response)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, inference.Request) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockService creates a new instance of MockService. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockService(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockService {
	m := &MockService{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
