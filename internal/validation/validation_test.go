// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

type validationTestSuite struct {
	suite.Suite
}

// In order for 'go test' to run this suite, we need to create
// a normal test function and pass our suite to suite.Run
func TestValidation(t *testing.T) {
	suite.Run(t, new(validationTestSuite))
}

var (
	errFirst  = errors.New("first")
	errSecond = errors.New("second")
)

func (s *validationTestSuite) TestChain() {
	s.Run("empty chain passes", func() {
		s.Assert().NoError(New().Validate())
	})
	s.Run("collects every violation", func() {
		err := New().
			AddCheck(false, errFirst).
			AddCheck(true, errors.New("unused")).
			AddCheck(false, errSecond).
			Validate()
		s.Require().Error(err)
		s.Assert().ErrorIs(err, errFirst)
		s.Assert().ErrorIs(err, errSecond)
		s.Assert().EqualError(err, "first; second")
	})
	s.Run("fail fast stops at the first violation", func() {
		err := New(FailFast()).
			AddCheck(false, errFirst).
			AddCheck(false, errSecond).
			Validate()
		s.Assert().Equal(errFirst, err)
	})
	s.Run("validation can run twice", func() {
		chain := New().AddCheck(false, errFirst)
		s.Assert().EqualError(chain.Validate(), "first")
		s.Assert().EqualError(chain.Validate(), "first")
	})
}

func (s *validationTestSuite) TestOneOfValidator() {
	s.Assert().NoError(NewOneOfValidator("backend", "bolt", "memory", "bolt").Validate())
	err := NewOneOfValidator("backend", "redis", "memory", "bolt").Validate()
	s.Assert().EqualError(err, `the [backend] must be one of memory|bolt, got "redis"`)
}

func (s *validationTestSuite) TestListenAddressValidator() {
	valid := []string{"127.0.0.1:0", ":9000", "localhost:65535", " 0.0.0.0:80 "}
	for _, address := range valid {
		s.Assert().NoError(NewListenAddressValidator(address).Validate(), address)
	}
	invalid := []string{"", "127.0.0.1", "127.0.0.1:port", "127.0.0.1:70000", "127.0.0.1:-1"}
	for _, address := range invalid {
		s.Assert().Error(NewListenAddressValidator(address).Validate(), address)
	}
}
