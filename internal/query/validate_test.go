package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dvsdk/internal/ir"
)

func TestValidate_WellFormedTree(t *testing.T) {
	top := 25
	q := QueryExpression{
		EntityName: "account",
		ColumnSet:  MustColumnSet("name", "revenue"),
		Criteria: &FilterExpression{
			FilterOperator: FilterAnd,
			Conditions: []ConditionExpression{
				{AttributeName: "statecode", Operator: OpEqual, Values: []ir.IRValue{ir.IRInt(0)}},
				{AttributeName: "parentaccountid", Operator: OpNull},
			},
			Filters: []FilterExpression{{
				FilterOperator: FilterOr,
				Conditions: []ConditionExpression{
					{AttributeName: "industrycode", Operator: OpIn, Values: []ir.IRValue{ir.IRInt(1), ir.IRInt(2)}},
				},
			}},
		},
		Orders: []OrderExpression{{AttributeName: "name", OrderType: OrderAscending}},
		LinkEntities: []LinkEntity{{
			LinkFromEntityName:    "account",
			LinkFromAttributeName: "primarycontactid",
			LinkToEntityName:      "contact",
			LinkToAttributeName:   "contactid",
			JoinOperator:          JoinInner,
		}},
		TopCount: &top,
	}

	assert.NoError(t, Validate(q))
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	q := QueryExpression{
		EntityName: "",
		ColumnSet:  ColumnSet{},
		Criteria: &FilterExpression{
			FilterOperator: FilterOperator(9),
			Conditions: []ConditionExpression{
				{AttributeName: "a", Operator: OpNull, Values: []ir.IRValue{ir.IRInt(1)}},
			},
		},
		Orders: []OrderExpression{{AttributeName: ""}},
		LinkEntities: []LinkEntity{{
			LinkFromEntityName:    "account",
			LinkFromAttributeName: "primarycontactid",
			LinkToEntityName:      "contact",
			LinkToAttributeName:   "contactid",
			LinkEntities: []LinkEntity{{
				LinkFromEntityName:    "contact",
				LinkFromAttributeName: "parentcustomerid",
				LinkToEntityName:      "",
				LinkToAttributeName:   "accountid",
			}},
		}},
	}

	err := Validate(q)
	require.Error(t, err)

	paths := make([]string, 0)
	for _, ve := range ValidationErrors(err) {
		paths = append(paths, ve.Path)
	}
	assert.Equal(t, []string{
		"entity_name",
		"column_set",
		"criteria.filter_operator",
		"criteria.conditions[0].values",
		"orders[0].attribute_name",
		"link_entities[0].link_entities[0].link_to_entity_name",
	}, paths)
}

func TestValidate_NonScalarValue(t *testing.T) {
	q := QueryExpression{
		EntityName: "account",
		ColumnSet:  AllColumns(),
		Criteria: &FilterExpression{Conditions: []ConditionExpression{
			{AttributeName: "a", Operator: OpEqual, Values: []ir.IRValue{ir.IRArray{ir.IRInt(1)}}},
			{AttributeName: "b", Operator: OpIn, Values: []ir.IRValue{ir.IRInt(1), ir.IRObject{}}},
		}},
	}

	verrs := ValidationErrors(Validate(q))
	require.Len(t, verrs, 2)
	assert.Equal(t, "criteria.conditions[0].values", verrs[0].Path)
	assert.Equal(t, "criteria.conditions[1].values[1]", verrs[1].Path)
	for _, ve := range verrs {
		assert.Equal(t, CodeValueMismatch, ve.Code)
	}
}

func TestValidate_LinkColumns(t *testing.T) {
	empty := ColumnSet{}
	l := LinkEntity{
		LinkFromEntityName:    "account",
		LinkFromAttributeName: "primarycontactid",
		LinkToEntityName:      "contact",
		LinkToAttributeName:   "contactid",
		Columns:               &empty,
	}

	err := ValidateLinkEntity(l)
	require.Error(t, err)
	verrs := ValidationErrors(err)
	require.Len(t, verrs, 1)
	assert.Equal(t, "columns", verrs[0].Path)
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Path: "top_count", Code: CodeOutOfRange, Message: "top count must be greater than 0, got 0"}
	assert.Equal(t, "top_count: OUT_OF_RANGE: top count must be greater than 0, got 0", err.Error())

	noPath := &ValidationError{Code: CodeRequired, Message: "missing"}
	assert.Equal(t, "REQUIRED: missing", noPath.Error())
}

func TestValidationErrors_Nil(t *testing.T) {
	assert.Nil(t, ValidationErrors(nil))
	assert.False(t, IsValidationError(nil))
}
