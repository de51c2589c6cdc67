package app

import (
	"log"
	"strings"
)

// ==========================================
// КАТАЛОГ ПРОДУКЦИИ
// ==========================================

// ProductCatalog — тонкая обертка над Store: выдает продукты для генерации
// постов и словарь названий для классификатора воронки.
type ProductCatalog struct {
	store *Store
}

func NewProductCatalog(st *Store) *ProductCatalog {
	pc := &ProductCatalog{store: st}
	if st.CountProducts() == 0 {
		if err := st.SeedProducts(defaultProducts()); err != nil {
			log.Printf("⚠️ Не удалось заполнить каталог продукции: %v", err)
		} else {
			log.Println("📦 Каталог продукции заполнен стартовым набором.")
		}
	}
	return pc
}

func (pc *ProductCatalog) Count() int64 {
	return pc.store.CountProducts()
}

func (pc *ProductCatalog) Random() *Product {
	return pc.store.RandomProduct()
}

func (pc *ProductCatalog) Find(query string) *Product {
	return pc.store.FindProduct(query)
}

// Keywords — названия и алиасы всех продуктов в нижнем регистре.
func (pc *ProductCatalog) Keywords() []string {
	items := pc.store.ListProducts()
	out := make([]string, 0, len(items)*2)
	for _, p := range items {
		out = append(out, strings.ToLower(p.Name))
		for _, a := range p.Aliases {
			out = append(out, strings.ToLower(a))
		}
	}
	return out
}

func defaultProducts() []Product {
	return []Product{
		{
			Name:        "Морской коллаген",
			Aliases:     []string{"коллаген", "collagen"},
			Category:    "красота",
			Price:       2490,
			Description: "Пептиды коллагена с витамином C. Курс на месяц, для кожи, волос и суставов.",
		},
		{
			Name:        "Омега-3 Premium",
			Aliases:     []string{"омега", "рыбий жир"},
			Category:    "здоровье",
			Price:       1890,
			Description: "Концентрат EPA/DHA из дикой рыбы, 90 капсул.",
		},
		{
			Name:        "Детокс-программа 14 дней",
			Aliases:     []string{"детокс", "очищение"},
			Category:    "программы",
			Price:       5900,
			Description: "Две недели мягкого очищения: клетчатка, сорбенты, план питания и поддержка куратора.",
		},
		{
			Name:        "Протеиновый коктейль",
			Aliases:     []string{"протеин", "коктейль"},
			Category:    "питание",
			Price:       2190,
			Description: "Замена приема пищи: 23 г белка, витамины и минералы. Вкус ваниль и шоколад.",
		},
		{
			Name:        "Мультивитамины для женщин",
			Aliases:     []string{"витамины", "мультивитамины"},
			Category:    "здоровье",
			Price:       1590,
			Description: "Комплекс на 30 дней с железом, фолиевой кислотой и магнием.",
		},
		{
			Name:        "Лифтинг-сыворотка",
			Aliases:     []string{"сыворотка", "лифтинг"},
			Category:    "красота",
			Price:       3290,
			Description: "Гиалуроновая кислота и пептиды. Для ежедневного ухода после 30.",
		},
	}
}
