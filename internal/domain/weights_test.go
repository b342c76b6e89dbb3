package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightsValidateRequiresTotal(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.Error(t, PrioritizationWeights{PriorityLevel: 10, Fulfillment: 10, Fairness: 10, Efficiency: 10, SkillMatch: 10}.Validate())
	assert.Error(t, PrioritizationWeights{}.Validate())
	assert.Error(t, PrioritizationWeights{PriorityLevel: 120, Fulfillment: -20}.Validate())
	assert.NoError(t, PrioritizationWeights{PriorityLevel: 33.5, Fulfillment: 66.5}.Validate())
}

func TestWeightsFromRanking(t *testing.T) {
	cases := []struct {
		name    string
		order   []string
		want    PrioritizationWeights
		wantErr bool
	}{
		{
			name:  "default order",
			order: Criteria(),
			want:  PrioritizationWeights{PriorityLevel: 40, Fulfillment: 30, Fairness: 20, Efficiency: 7, SkillMatch: 3},
		},
		{
			name:  "skill match first",
			order: []string{CriterionSkillMatch, CriterionFairness, CriterionPriorityLevel, CriterionEfficiency, CriterionFulfillment},
			want:  PrioritizationWeights{SkillMatch: 40, Fairness: 30, PriorityLevel: 20, Efficiency: 7, Fulfillment: 3},
		},
		{name: "partial", order: []string{CriterionFairness}, wantErr: true},
		{name: "duplicate", order: []string{CriterionFairness, CriterionFairness, CriterionEfficiency, CriterionSkillMatch, CriterionFulfillment}, wantErr: true},
		{name: "unknown", order: []string{"speed", CriterionFairness, CriterionEfficiency, CriterionSkillMatch, CriterionFulfillment}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := WeightsFromRanking(tc.order)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.NoError(t, got.Validate())
		})
	}
}

func allPairs(pref int) []Comparison {
	var out []Comparison
	c := Criteria()
	for i := range c {
		for j := i + 1; j < len(c); j++ {
			out = append(out, Comparison{First: c[i], Second: c[j], Preference: pref})
		}
	}
	return out
}

func TestWeightsFromPairwise(t *testing.T) {
	cases := []struct {
		name    string
		list    []Comparison
		want    PrioritizationWeights
		wantErr bool
	}{
		{
			name: "all ties",
			list: allPairs(0),
			want: PrioritizationWeights{PriorityLevel: 20, Fulfillment: 20, Fairness: 20, Efficiency: 20, SkillMatch: 20},
		},
		{
			// earlier criterion always wins by 1: scores 4,3,2,1,0 of 10
			name: "strict order",
			list: allPairs(-1),
			want: PrioritizationWeights{PriorityLevel: 40, Fulfillment: 30, Fairness: 20, Efficiency: 10, SkillMatch: 0},
		},
		{
			name: "single decisive comparison",
			list: []Comparison{{First: CriterionFairness, Second: CriterionEfficiency, Preference: 3}},
			want: PrioritizationWeights{Efficiency: 100},
		},
		{
			// three-way tie rounds to 33 each; the missing point lands on priorityLevel
			name: "rounding remainder",
			list: []Comparison{
				{First: CriterionFulfillment, Second: CriterionFairness},
				{First: CriterionFairness, Second: CriterionEfficiency},
				{First: CriterionEfficiency, Second: CriterionFulfillment},
			},
			want: PrioritizationWeights{PriorityLevel: 1, Fulfillment: 33, Fairness: 33, Efficiency: 33},
		},
		{
			// 2/3 rounds to 67 and 1/6 to 17 twice: 101, so priorityLevel gives one back
			name: "rounding overflow",
			list: []Comparison{
				{First: CriterionPriorityLevel, Second: CriterionFulfillment, Preference: -2},
				{First: CriterionFairness, Second: CriterionEfficiency},
			},
			want: PrioritizationWeights{PriorityLevel: 66, Fairness: 17, Efficiency: 17},
		},
		{name: "empty", wantErr: true},
		{name: "self comparison", list: []Comparison{{First: CriterionFairness, Second: CriterionFairness, Preference: 1}}, wantErr: true},
		{name: "out of scale", list: []Comparison{{First: CriterionFairness, Second: CriterionEfficiency, Preference: 4}}, wantErr: true},
		{name: "unknown criterion", list: []Comparison{{First: "speed", Second: CriterionEfficiency, Preference: 1}}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := WeightsFromPairwise(tc.list)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.NoError(t, got.Validate())
		})
	}
}
