/*
 * Copyright 2025 okoshkin.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"reflect"
	"testing"
)

func TestPageRequestDefaults(t *testing.T) {
	p := NewDefaultPageRequest(0, 0)
	if p.GetPage() != 1 {
		t.Errorf("page = %d, want 1", p.GetPage())
	}
	if p.GetPageSize() != 10 {
		t.Errorf("page size = %d, want 10", p.GetPageSize())
	}
	if p.GetOffset() != 0 {
		t.Errorf("offset = %d, want 0", p.GetOffset())
	}
	if p.GetFilter() != nil {
		t.Error("default request has no filter")
	}
	if len(p.GetOrders()) != 0 {
		t.Error("default request has no orders")
	}

	if off := NewDefaultPageRequest(3, 20).GetOffset(); off != 40 {
		t.Errorf("offset = %d, want 40", off)
	}
}

func TestPageRequestFilterAndOrders(t *testing.T) {
	f := NewQueryFilter("status = ? AND age > ?", "active", 21)
	if f.Schema != "status = ? AND age > ?" {
		t.Errorf("schema = %q", f.Schema)
	}
	if len(f.Args) != 2 || f.Args[0] != "active" || f.Args[1] != 21 {
		t.Errorf("args = %v", f.Args)
	}

	p := NewPageRequestWithFilter(2, 5, f)
	if p.GetFilter() != f {
		t.Error("filter not carried")
	}
	if len(p.GetOrders()) != 0 {
		t.Error("filter-only request has no orders")
	}

	o := NewPageRequestWithOrders(1, 5, []string{"id DESC"})
	if !reflect.DeepEqual(o.GetOrders(), []string{"id DESC"}) {
		t.Errorf("orders = %v", o.GetOrders())
	}
	if o.GetFilter() != nil {
		t.Error("orders-only request has no filter")
	}
}

func TestPaginationMath(t *testing.T) {
	p := &Pagination[int]{Page: 2, PageSize: 10, Total: 25}
	if p.TotalPages() != 3 {
		t.Errorf("TotalPages = %d, want 3", p.TotalPages())
	}
	if !p.HasNext() {
		t.Error("page 2 of 3 should have a next page")
	}

	p.Page = 3
	if p.HasNext() {
		t.Error("last page should not have a next page")
	}

	p.Total = 30
	if p.TotalPages() != 3 {
		t.Errorf("TotalPages = %d, want 3 for an exact multiple", p.TotalPages())
	}

	if (&Pagination[int]{PageSize: 0, Total: 5}).TotalPages() != 0 {
		t.Error("zero page size has no pages")
	}

	empty := NewDefaultPagination[string](1, 10)
	if empty.Total != 0 || empty.Items == nil || len(empty.Items) != 0 {
		t.Errorf("empty pagination = %+v", empty)
	}
	if empty.HasNext() {
		t.Error("empty pagination has no next page")
	}
}
