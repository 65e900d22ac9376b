package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodeDictionaryRejectsDuplicateNames(t *testing.T) {
	_, err := NewCodeDictionary(DomainModel, []DictionaryEntry{
		{Name: "Y2", Code: "100-1"},
		{Name: "Y3", Code: "100-2"},
		{Name: "Y2", Code: "100-3"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDictionaryIntegrity))

	var integrity *DictionaryIntegrityError
	require.True(t, errors.As(err, &integrity))
	assert.Equal(t, DomainModel, integrity.Domain)
	assert.Equal(t, map[string][]string{"Y2": {"100-1", "100-3"}}, integrity.Duplicates)
	assert.Contains(t, err.Error(), "model")
}

func TestNewCodeDictionaryRejectsRepeatedIdenticalRows(t *testing.T) {
	_, err := NewCodeDictionary(DomainProcess, []DictionaryEntry{
		{Name: "绕线", Code: "P01"},
		{Name: "绕线", Code: "P01"},
	})
	assert.ErrorIs(t, err, ErrDictionaryIntegrity)
}

func TestCodeDictionaryLookupsAndReverse(t *testing.T) {
	dict, err := NewCodeDictionary(DomainCategory1, []DictionaryEntry{
		{Name: "机加", Code: "C01"},
		{Name: "装配", Code: "C02"},
	})
	require.NoError(t, err)

	code, ok := dict.Code("装配")
	assert.True(t, ok)
	assert.Equal(t, "C02", code)

	_, ok = dict.Code("喷漆")
	assert.False(t, ok)

	name, ok := dict.Name("C01")
	assert.True(t, ok)
	assert.Equal(t, "机加", name)

	reversed := dict.Reverse()
	assert.Equal(t, map[string]string{"C01": "机加", "C02": "装配"}, reversed)

	reversed["C03"] = "mutated"
	assert.Equal(t, 2, dict.Len())
	assert.Equal(t, []string{"机加", "装配"}, dict.Names())
}

func TestDayBefore(t *testing.T) {
	cases := map[string]string{
		"20230601": "20230531",
		"20240301": "20240229",
		"20230101": "20221231",
	}
	for in, want := range cases {
		got, err := DayBefore(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}

	_, err := DayBefore("2023-06-01")
	assert.Error(t, err)
}

func TestUnresolvedLabelErrorMessageListsEveryDomain(t *testing.T) {
	err := &UnresolvedLabelError{Missing: map[DictionaryDomain][]string{
		DomainCategory1: {"装配"},
		DomainProcess:   {"喷漆", "绕线"},
	}}
	msg := err.Error()
	assert.Contains(t, msg, "missing cat1 codes for values: 装配")
	assert.Contains(t, msg, "missing process codes for values: 喷漆, 绕线")
	assert.NotContains(t, msg, "cat2")
	assert.ErrorIs(t, err, ErrUnresolvedLabel)
}
