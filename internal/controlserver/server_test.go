package controlserver

import (
	"testing"

	"entropysvc/internal/model"
)

func TestSummarizeSuite22EmptyResults(t *testing.T) {
	rate, uniform := summarizeSuite22(nil)
	if rate != 0 || uniform {
		t.Fatalf("expected zero values for empty results, got rate=%v uniform=%v", rate, uniform)
	}
}

func TestSummarizeSuite22ComputesPassRate(t *testing.T) {
	results := []model.TestResult{
		{ChunkIndex: 1, TestName: "frequency", Passed: true, ChunkCompliant: true},
		{ChunkIndex: 1, TestName: "runs", Passed: false, ChunkCompliant: true},
		{ChunkIndex: 2, TestName: "frequency", Passed: true, ChunkCompliant: true},
	}
	rate, uniform := summarizeSuite22(results)
	if rate != 2.0/3.0 {
		t.Errorf("expected pass rate 2/3, got %v", rate)
	}
	if !uniform {
		t.Error("expected uniform=true when every chunk is compliant")
	}
}

func TestSummarizeSuite22UniformFalseWhenAnyChunkNonCompliant(t *testing.T) {
	results := []model.TestResult{
		{ChunkIndex: 1, TestName: "frequency", Passed: true, ChunkCompliant: true},
		{ChunkIndex: 2, TestName: "frequency", Passed: true, ChunkCompliant: false},
	}
	_, uniform := summarizeSuite22(results)
	if uniform {
		t.Error("expected uniform=false when one chunk is non-compliant")
	}
}
