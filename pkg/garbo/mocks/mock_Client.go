// Package mocks provides test doubles for the garbo client.
package mocks

import (
	"context"

	model "github.com/sells-group/extraction-ops/internal/model"
	garbo "github.com/sells-group/extraction-ops/pkg/garbo"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// ListCompanies provides a mock function with given fields: ctx, env
func (_m *MockClient) ListCompanies(ctx context.Context, env garbo.Environment) ([]model.Company, error) {
	ret := _m.Called(ctx, env)

	if len(ret) == 0 {
		panic("no return value specified for ListCompanies")
	}

	var r0 []model.Company
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, garbo.Environment) ([]model.Company, error)); ok {
		return rf(ctx, env)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Company)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// ListQueues provides a mock function with given fields: ctx
func (_m *MockClient) ListQueues(ctx context.Context) ([]garbo.QueueInfo, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for ListQueues")
	}

	var r0 []garbo.QueueInfo
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context) ([]garbo.QueueInfo, error)); ok {
		return rf(ctx)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]garbo.QueueInfo)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// ListJobs provides a mock function with given fields: ctx, queue, states
func (_m *MockClient) ListJobs(ctx context.Context, queue string, states ...string) ([]model.Job, error) {
	_va := make([]interface{}, len(states))
	for _i := range states {
		_va[_i] = states[_i]
	}
	var _ca []interface{}
	_ca = append(_ca, ctx, queue)
	_ca = append(_ca, _va...)
	ret := _m.Called(_ca...)

	if len(ret) == 0 {
		panic("no return value specified for ListJobs")
	}

	var r0 []model.Job
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, ...string) ([]model.Job, error)); ok {
		return rf(ctx, queue, states...)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Job)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// RerunJob provides a mock function with given fields: ctx, queue, jobID
func (_m *MockClient) RerunJob(ctx context.Context, queue string, jobID string) error {
	ret := _m.Called(ctx, queue, jobID)

	if len(ret) == 0 {
		panic("no return value specified for RerunJob")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, string) error); ok {
		return rf(ctx, queue, jobID)
	}
	return ret.Error(0)
}

// ApproveJob provides a mock function with given fields: ctx, queue, jobID, approved
func (_m *MockClient) ApproveJob(ctx context.Context, queue string, jobID string, approved bool) error {
	ret := _m.Called(ctx, queue, jobID, approved)

	if len(ret) == 0 {
		panic("no return value specified for ApproveJob")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, string, bool) error); ok {
		return rf(ctx, queue, jobID, approved)
	}
	return ret.Error(0)
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

var _ garbo.Client = (*MockClient)(nil)
