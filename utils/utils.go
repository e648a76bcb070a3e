// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package utils holds schema helpers shared by the drivers and the command
// line.
package utils

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/dbt-labs/xdbc/driver/odbc"
)

// typeNameKeys are the field metadata keys drivers use to report the
// database type of a column, in lookup order.
var typeNameKeys = []string{
	odbc.MetadataKeyDataType,
	"DATA_TYPE",
	"SNOWFLAKE_TYPE",
	"Type",
}

// ColumnInfo describes one result column.
type ColumnInfo struct {
	Name         string `json:"name"`
	ArrowType    string `json:"arrow_type"`
	DatabaseType string `json:"database_type,omitempty"`
	Nullable     bool   `json:"nullable"`
}

// DatabaseTypeName returns the database type a driver recorded for the
// field, or "" when there is none.
func DatabaseTypeName(field arrow.Field) string {
	for _, key := range typeNameKeys {
		if v, ok := field.Metadata.GetValue(key); ok {
			return v
		}
	}
	return ""
}

// DescribeSchema lists the columns of a result schema. Arrow types are
// rendered without metadata.
func DescribeSchema(schema *arrow.Schema) []ColumnInfo {
	bare := RemoveSchemaMetadata(schema)
	cols := make([]ColumnInfo, schema.NumFields())
	for i, field := range schema.Fields() {
		cols[i] = ColumnInfo{
			Name:         field.Name,
			ArrowType:    bare.Field(i).Type.String(),
			DatabaseType: DatabaseTypeName(field),
			Nullable:     field.Nullable,
		}
	}
	return cols
}

func RemoveSchemaMetadata(schema *arrow.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(schema.Fields()))
	for i, field := range schema.Fields() {
		fields[i] = removeFieldMetadata(&field)
	}
	return arrow.NewSchema(fields, nil)
}

func removeFieldMetadata(field *arrow.Field) arrow.Field {
	fieldType := field.Type

	if nestedType, ok := field.Type.(arrow.NestedType); ok {
		childFields := make([]arrow.Field, len(nestedType.Fields()))
		for i, field := range nestedType.Fields() {
			childFields[i] = removeFieldMetadata(&field)
		}

		switch ty := field.Type.(type) {
		case *arrow.DenseUnionType:
			fieldType = arrow.DenseUnionOf(childFields, ty.TypeCodes())
		case *arrow.FixedSizeListType:
			fieldType = arrow.FixedSizeListOfField(ty.Len(), childFields[0])
		case *arrow.ListType:
			fieldType = arrow.ListOfField(childFields[0])
		case *arrow.LargeListType:
			fieldType = arrow.LargeListOfField(childFields[0])
		case *arrow.MapType:
			// XXX: arrow-go doesn't let us build a map type from fields (so
			// nonstandard field names or nullability will be lost here)

			// child must be struct
			structType := ty.Elem().(*arrow.StructType)
			// struct must have two children
			keyType := structType.Field(0).Type
			itemType := structType.Field(1).Type
			mapType := arrow.MapOf(keyType, itemType)
			mapType.KeysSorted = ty.KeysSorted
			fieldType = mapType
		case *arrow.SparseUnionType:
			fieldType = arrow.SparseUnionOf(childFields, ty.TypeCodes())
		case *arrow.StructType:
			fieldType = arrow.StructOf(childFields...)
		default:
			// XXX: ignore it
		}
	}

	return arrow.Field{
		Name:     field.Name,
		Type:     fieldType,
		Nullable: field.Nullable,
		Metadata: arrow.Metadata{},
	}
}
