package rag

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDataUnavailable   = errors.New("business data unavailable")
	ErrAnswerUnavailable = errors.New("answer unavailable")
	ErrNoProvider        = errors.New("no usable embedding provider")
	ErrInvalidSplitter   = errors.New("invalid splitter config")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

var (
	documentNamespace = uuid.MustParse("6f1d7c2e-3b0a-4c8e-9d52-1a7e0b4f9c31")
	chunkNamespace    = uuid.MustParse("b2c4e6a8-1d3f-4a5b-8c7d-9e0f1a2b3c4d")
)
