package db

import "fmt"

// person demonstrates the UserValue seam (spec.md §6.3): a plain struct a
// host maps to and from []KeyValue, entirely outside the core.
type person struct {
	Name string
	Age  int64
}

func (p person) FieldKeys() []string { return []string{"name", "age"} }

func (p person) ToKeyValues() []KeyValue {
	return []KeyValue{
		{Key: "name", Value: NewString(p.Name)},
		{Key: "age", Value: NewI64(p.Age)},
	}
}

func (p *person) FromElement(elem Element) error {
	for _, kv := range elem.Values {
		switch kv.Key {
		case "name":
			name, ok := kv.Value.AsString()
			if !ok {
				return fmt.Errorf("name: expected string value")
			}
			p.Name = name
		case "age":
			age, ok := kv.Value.AsI64()
			if !ok {
				return fmt.Errorf("age: expected i64 value")
			}
			p.Age = age
		}
	}
	return nil
}

var _ UserValue = (*person)(nil)

// Example_userValue shows round-tripping a struct through the core's
// plain []KeyValue surface using the UserValue contract, without the core
// knowing the interface exists.
func Example_userValue() {
	d := openTestDb()
	defer d.Close()

	alice := person{Name: "Alice", Age: 30}
	res, err := d.Execute(InsertNodesQuery{Count: 1, Values: SingleValues(alice.ToKeyValues())}, "example", 0)
	if err != nil {
		fmt.Println("insert error:", err)
		return
	}
	id := res.Ids[0]

	selectRes, err := d.Execute(SelectQuery{Ids: IdsOf(ElementId(id))}, "example", 0)
	if err != nil {
		fmt.Println("select error:", err)
		return
	}

	var loaded person
	if err := loaded.FromElement(selectRes.Elements[0]); err != nil {
		fmt.Println("decode error:", err)
		return
	}
	fmt.Println(loaded.Name, loaded.Age)
	// Output: Alice 30
}
