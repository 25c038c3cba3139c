package sheetsync_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/shopops_backend/config"
	"bitbucket.org/mmdatafocus/shopops_backend/models"
	"bitbucket.org/mmdatafocus/shopops_backend/sheetsync"
	"github.com/shopspring/decimal"
)

// scriptedOracle answers from a fixed table and counts calls, so tests can
// assert that the cache short-circuits repeat lookups.
type scriptedOracle struct {
	mu         sync.Mutex
	answers    map[string]sheetsync.OracleResult
	oneCalls   int
	batchCalls int
	namesSeen  int
}

func (o *scriptedOracle) answerFor(rawName string) sheetsync.OracleResult {
	if answer, ok := o.answers[strings.ToLower(rawName)]; ok {
		answer.Original = rawName
		return answer
	}
	return sheetsync.OracleResult{Original: rawName, Name: rawName, Category: "other"}
}

func (o *scriptedOracle) NormalizeOne(ctx context.Context, rawName string) (*sheetsync.OracleResult, error) {
	o.mu.Lock()
	o.oneCalls++
	o.namesSeen++
	o.mu.Unlock()
	answer := o.answerFor(rawName)
	return &answer, nil
}

func (o *scriptedOracle) NormalizeBatch(ctx context.Context, rawNames []string) ([]sheetsync.OracleResult, error) {
	o.mu.Lock()
	o.batchCalls++
	o.namesSeen += len(rawNames)
	o.mu.Unlock()
	results := make([]sheetsync.OracleResult, 0, len(rawNames))
	for _, rawName := range rawNames {
		results = append(results, o.answerFor(rawName))
	}
	return results, nil
}

func (o *scriptedOracle) totalNamesSeen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.namesSeen
}

func setupIntegrationDB(t *testing.T) {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "shopops_test")
	t.Setenv("ANTHROPIC_API_KEY", "")

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		t.Fatal("db is nil after ConnectDatabaseWithRetry")
	}
	models.MigrateTable()
}

func salesSheetPayload(price1, profit1 string) *sheetsync.SyncPayload {
	return &sheetsync.SyncPayload{
		SheetName: "Đợt hàng 11 - 1125",
		Headers:   []string{"Khách hàng", "Mặt hàng", "Giá bán (VND)", "Lãi (VND)", "Thanh toán"},
		Rows: [][]interface{}{
			{"Chị Lan", "Vitamin C 1000mg Tablets", price1, profit1, "đã thanh toán"},
			{"Anh Minh", "sữa rửa mặt kiehl", "850,000", "150,000", "chưa"},
		},
	}
}

func TestSyncSheetIdempotentAndEditDeltas(t *testing.T) {
	setupIntegrationDB(t)
	ctx := context.Background()
	db := config.GetDB()

	oracle := &scriptedOracle{answers: map[string]sheetsync.OracleResult{
		"vitamin c 1000mg tablets": {Name: "Vitamin C 1000mg", Category: "supplements"},
		"sữa rửa mặt kiehl":        {Name: "Kiehl's Face Wash", Category: "skincare", Brand: strPtr("Kiehl's")},
	}}
	synchronizer := sheetsync.NewSynchronizer(sheetsync.NewResolverWithOracle(oracle))

	result, err := synchronizer.SyncSheet(ctx, salesSheetPayload("1,200,000 đ", "300,000"))
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if result.RowsCreated != 2 || result.RowsUpdated != 0 {
		t.Fatalf("first sync created=%d updated=%d, want 2/0", result.RowsCreated, result.RowsUpdated)
	}

	batch, err := models.GetBatchBySheetName(ctx, db, "Đợt hàng 11 - 1125")
	if err != nil || batch == nil {
		t.Fatalf("batch lookup: %v %v", batch, err)
	}
	if batch.BatchNumber == nil || *batch.BatchNumber != 11 {
		t.Errorf("batch number = %v, want 11", batch.BatchNumber)
	}
	if batch.TotalItems != 2 {
		t.Errorf("total items = %d, want 2", batch.TotalItems)
	}
	if !batch.TotalRevenueVnd.Equal(decimal.NewFromInt(2050000)) {
		t.Errorf("batch revenue = %s, want 2050000", batch.TotalRevenueVnd)
	}

	vitamin := productByNormalizedName(t, "vitamin c 1000mg")
	if vitamin.TotalSales != 1 || !vitamin.TotalRevenueVnd.Equal(decimal.NewFromInt(1200000)) {
		t.Fatalf("vitamin aggregates after first sync: sales=%d revenue=%s", vitamin.TotalSales, vitamin.TotalRevenueVnd)
	}
	if vitamin.Category != models.ProductCategorySupplements {
		t.Errorf("vitamin category = %q", vitamin.Category)
	}

	// Re-sync of the unchanged sheet: same rows update in place, nothing
	// double-counts.
	result, err = synchronizer.SyncSheet(ctx, salesSheetPayload("1,200,000 đ", "300,000"))
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if result.RowsCreated != 0 || result.RowsUpdated != 2 {
		t.Fatalf("second sync created=%d updated=%d, want 0/2", result.RowsCreated, result.RowsUpdated)
	}

	var saleCount int64
	if err := db.WithContext(ctx).Model(&models.Sale{}).Count(&saleCount).Error; err != nil {
		t.Fatal(err)
	}
	if saleCount != 2 {
		t.Fatalf("sale rows = %d, want 2 after re-sync", saleCount)
	}

	vitamin = productByNormalizedName(t, "vitamin c 1000mg")
	if vitamin.TotalSales != 1 || !vitamin.TotalRevenueVnd.Equal(decimal.NewFromInt(1200000)) {
		t.Fatalf("vitamin aggregates changed on no-op re-sync: sales=%d revenue=%s", vitamin.TotalSales, vitamin.TotalRevenueVnd)
	}

	// Edited row: the price change lands once as a signed delta, the sale
	// count stays at one.
	if _, err = synchronizer.SyncSheet(ctx, salesSheetPayload("1,500,000", "450,000")); err != nil {
		t.Fatalf("edited sync: %v", err)
	}

	vitamin = productByNormalizedName(t, "vitamin c 1000mg")
	if vitamin.TotalSales != 1 {
		t.Errorf("vitamin total_sales = %d after edit, want 1", vitamin.TotalSales)
	}
	if !vitamin.TotalRevenueVnd.Equal(decimal.NewFromInt(1500000)) {
		t.Errorf("vitamin revenue = %s after edit, want 1500000", vitamin.TotalRevenueVnd)
	}
	if !vitamin.TotalProfitVnd.Equal(decimal.NewFromInt(450000)) {
		t.Errorf("vitamin profit = %s after edit, want 450000", vitamin.TotalProfitVnd)
	}

	batch, _ = models.GetBatchBySheetName(ctx, db, "Đợt hàng 11 - 1125")
	if !batch.TotalRevenueVnd.Equal(decimal.NewFromInt(2350000)) {
		t.Errorf("batch revenue = %s after edit, want 2350000", batch.TotalRevenueVnd)
	}
}

func TestResolverMemoizesOracleAnswers(t *testing.T) {
	setupIntegrationDB(t)
	ctx := context.Background()

	oracle := &scriptedOracle{answers: map[string]sheetsync.OracleResult{
		"nước hoa victoria secret": {Name: "Victoria's Secret Perfume", Category: "fragrance", Brand: strPtr("Victoria's Secret")},
	}}
	resolver := sheetsync.NewResolverWithOracle(oracle)

	first := resolver.ResolveName(ctx, "nước hoa victoria secret")
	if first.Name != "Victoria's Secret Perfume" || first.Category != models.ProductCategoryFragrance {
		t.Fatalf("first resolution: %+v", first)
	}

	// Same name again, single and batched: the memo table answers, the
	// oracle is not consulted a second time.
	second := resolver.ResolveName(ctx, "Nước Hoa Victoria Secret  ")
	if second.Name != first.Name {
		t.Errorf("cached resolution differs: %+v", second)
	}
	batch := resolver.ResolveNames(ctx, []string{"nước hoa victoria secret"})
	if batch["nước hoa victoria secret"].Name != first.Name {
		t.Errorf("batched cached resolution differs: %+v", batch)
	}

	if seen := oracle.totalNamesSeen(); seen != 1 {
		t.Errorf("oracle saw %d names, want 1", seen)
	}
}

func TestConcurrentIdentityCreationConverges(t *testing.T) {
	setupIntegrationDB(t)
	ctx := context.Background()
	db := config.GetDB()

	identity := models.ResolvedIdentity{
		Name:           "Ensure Adult Nutrition",
		NameNormalized: "ensure adult nutrition",
		Category:       models.ProductCategorySupplements,
	}

	const racers = 8
	ids := make(chan int, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			product, err := models.FindOrCreateNormalizedProduct(ctx, db, identity)
			if err != nil {
				t.Errorf("FindOrCreateNormalizedProduct: %v", err)
				return
			}
			ids <- product.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int]bool{}
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Fatalf("racers saw %d distinct ids, want 1", len(seen))
	}

	var count int64
	if err := db.Model(&models.NormalizedProduct{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("identity rows = %d, want 1", count)
	}
}

func TestReconcileAndUnsoldReport(t *testing.T) {
	setupIntegrationDB(t)
	ctx := context.Background()
	db := config.GetDB()

	product := models.NormalizedProduct{
		Name:           "Kirkland Glucosamine",
		NameNormalized: "kirkland glucosamine",
		Category:       models.ProductCategorySupplements,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatal(err)
	}

	batch := models.Batch{SheetName: "Đợt 12", SyncedAt: time.Now()}
	if err := db.Create(&batch).Error; err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	sales := []models.Sale{
		{BatchId: batch.ID, RowNumber: 1, ProductNameRaw: "glucosamine kirland costco", ProductId: &product.ID, SyncedAt: now},
		{BatchId: batch.ID, RowNumber: 2, ProductNameRaw: "Vitamin C 1000mg Tablets chính hãng", SyncedAt: now},
	}
	for i := range sales {
		if err := db.Create(&sales[i]).Error; err != nil {
			t.Fatal(err)
		}
	}

	electronics := "electronics"
	posted := []models.PostedItem{
		// Tier 1: bound to the product, posted before the sale synced.
		{ProductName: "Kirkland Glucosamine 1500mg", ProductId: &product.ID, PostedAt: now.Add(-time.Hour)},
		// Tier 2: no binding, the leading words match the raw sale name.
		{ProductName: "Vitamin C 1000mg Tablets", PostedAt: now.AddDate(0, 0, -20)},
		// Never sells.
		{ProductName: "Bose QuietComfort Headphones", Category: &electronics, PostedAt: now.AddDate(0, 0, -20)},
	}
	for i := range posted {
		if err := db.Create(&posted[i]).Error; err != nil {
			t.Fatal(err)
		}
	}

	result, err := sheetsync.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.ItemsProcessed != 3 || result.NewMatches != 2 {
		t.Fatalf("reconcile processed=%d matches=%d, want 3/2", result.ItemsProcessed, result.NewMatches)
	}

	var matched models.PostedItem
	if err := db.First(&matched, posted[1].ID).Error; err != nil {
		t.Fatal(err)
	}
	if !matched.Sold || matched.MatchedSaleId == nil || *matched.MatchedSaleId != sales[1].ID {
		t.Errorf("fuzzy match not recorded: %+v", matched)
	}

	// Re-running must not rematch or flip anything back.
	result, err = sheetsync.Reconcile(ctx)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if result.ItemsProcessed != 1 || result.NewMatches != 0 {
		t.Fatalf("second reconcile processed=%d matches=%d, want 1/0", result.ItemsProcessed, result.NewMatches)
	}

	report, err := sheetsync.BuildUnsoldReport(ctx, 14, 50)
	if err != nil {
		t.Fatalf("unsold report: %v", err)
	}
	if report.TotalPosted != 3 || report.TotalSold != 2 {
		t.Errorf("report totals posted=%d sold=%d, want 3/2", report.TotalPosted, report.TotalSold)
	}
	if report.StaleUnsold != 1 || len(report.Items) != 1 {
		t.Fatalf("stale unsold = %d items=%d, want 1/1", report.StaleUnsold, len(report.Items))
	}
	if report.Items[0].ProductName != "Bose QuietComfort Headphones" {
		t.Errorf("stale item = %q", report.Items[0].ProductName)
	}
	if report.ByCategory["electronics"] != 1 {
		t.Errorf("category breakdown = %+v", report.ByCategory)
	}

	// A 30-day threshold hides the 20-day-old item.
	report, err = sheetsync.BuildUnsoldReport(ctx, 30, 50)
	if err != nil {
		t.Fatal(err)
	}
	if report.StaleUnsold != 0 || len(report.Items) != 0 {
		t.Errorf("30-day threshold: stale=%d items=%d, want 0/0", report.StaleUnsold, len(report.Items))
	}
}

func productByNormalizedName(t *testing.T, nameNormalized string) *models.NormalizedProduct {
	t.Helper()
	var product models.NormalizedProduct
	err := config.GetDB().Where("name_normalized = ?", nameNormalized).Take(&product).Error
	if err != nil {
		t.Fatalf("product %q lookup: %v", nameNormalized, err)
	}
	return &product
}

func strPtr(s string) *string { return &s }

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("shopops-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=shopops_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
