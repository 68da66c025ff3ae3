package node

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/config"
	"github.com/ansilo-run/ansilo/internal/types"
)

// DataSourcesFromConfig converts the config file's data_sources map into
// catalog.DataSource values, the shape catalog.Catalog.Load expects.
func DataSourcesFromConfig(cfg map[string]config.DataSourceConfig) []catalog.DataSource {
	out := make([]catalog.DataSource, 0, len(cfg))
	for id, dc := range cfg {
		out = append(out, catalog.DataSource{ID: id, Type: dc.Type, Options: dc.Options})
	}
	return out
}

// EntitiesFromConfig converts entity configs into catalog.Entity values,
// resolving each attribute's YAML type name into a concrete
// types.DataType via parseAttributeType.
func EntitiesFromConfig(cfg []config.EntityConfig) ([]catalog.Entity, error) {
	out := make([]catalog.Entity, 0, len(cfg))
	for _, ec := range cfg {
		attrs := make([]catalog.Attribute, 0, len(ec.Attributes))
		for _, ac := range ec.Attributes {
			dt, err := parseAttributeType(ac.Type)
			if err != nil {
				return nil, fmt.Errorf("entity %q attribute %q: %w", ec.ID, ac.Name, err)
			}
			attrs = append(attrs, catalog.Attribute{
				Name:        ac.Name,
				Type:        dt,
				Nullable:    ac.Nullable,
				PrimaryKey:  ac.PrimaryKey,
				Description: ac.Description,
			})
		}
		constraints := make([]catalog.Constraint, 0, len(ec.Constraints))
		for _, cc := range ec.Constraints {
			constraints = append(constraints, catalog.Constraint{Kind: cc.Kind, Columns: cc.Columns})
		}
		out = append(out, catalog.Entity{
			ID:          ec.ID,
			Name:        ec.Name,
			Description: ec.Description,
			Tags:        ec.Tags,
			Attributes:  attrs,
			Constraints: constraints,
			Source: catalog.Source{
				DataSourceID: ec.Source.DataSourceID,
				Options:      ec.Source.Options,
			},
		})
	}
	return out, nil
}

// parseAttributeType maps the YAML "type" string onto a types.DataType,
// using types.Kind.String() names as the canonical vocabulary so config
// files and error messages agree on spelling. Parametrized kinds take a
// parenthesized argument list: "decimal(18,4)", "utf8_string(255)",
// "utf8_string(255,UTF-8)", "datetime_tz(UTC)".
func parseAttributeType(name string) (types.DataType, error) {
	name = strings.TrimSpace(name)
	base, args, hasArgs := splitTypeArgs(name)

	switch base {
	case "null":
		return types.Null(), nil
	case "boolean", "bool":
		return types.Boolean(), nil
	case "int8":
		return types.Int8(), nil
	case "int16":
		return types.Int16(), nil
	case "int32":
		return types.Int32(), nil
	case "int64":
		return types.Int64(), nil
	case "uint8":
		return types.UInt8(), nil
	case "uint16":
		return types.UInt16(), nil
	case "uint32":
		return types.UInt32(), nil
	case "uint64":
		return types.UInt64(), nil
	case "float32":
		return types.Float32Type(), nil
	case "float64":
		return types.Float64Type(), nil
	case "decimal":
		precision, scale := 38, 9
		if hasArgs {
			var err error
			precision, scale, err = parseTwoInts(args)
			if err != nil {
				return types.DataType{}, fmt.Errorf("parsing decimal args %q: %w", args, err)
			}
		}
		return types.Decimal(precision, scale), nil
	case "utf8_string", "string":
		length := 0
		encoding := ""
		if hasArgs {
			parts := strings.SplitN(args, ",", 2)
			if n, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
				length = n
			}
			if len(parts) == 2 {
				encoding = strings.TrimSpace(parts[1])
			}
		}
		return types.Utf8String(length, encoding), nil
	case "binary":
		return types.Binary(), nil
	case "json":
		return types.JSON(), nil
	case "date":
		return types.Date(), nil
	case "time":
		return types.Time(), nil
	case "datetime":
		return types.DateTime(), nil
	case "datetime_tz":
		tz := "UTC"
		if hasArgs {
			tz = strings.TrimSpace(args)
		}
		return types.DateTimeWithTZ(tz), nil
	case "uuid":
		return types.UUID(), nil
	default:
		return types.DataType{}, fmt.Errorf("unknown attribute type %q", name)
	}
}

func splitTypeArgs(name string) (base, args string, hasArgs bool) {
	open := strings.IndexByte(name, '(')
	if open == -1 || !strings.HasSuffix(name, ")") {
		return name, "", false
	}
	return name[:open], name[open+1 : len(name)-1], true
}

func parseTwoInts(args string) (int, int, error) {
	parts := strings.SplitN(args, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected two comma-separated integers")
	}
	a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}
